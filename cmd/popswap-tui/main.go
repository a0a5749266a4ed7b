package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/popswap/gopopswap/internal/app"
	"github.com/popswap/gopopswap/internal/domain"
	"github.com/popswap/gopopswap/internal/trade"
	"github.com/popswap/gopopswap/pkg/config"
	"github.com/popswap/gopopswap/pkg/logger"
)

var (
	// 样式定义
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")) // 绿色

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1).
			Width(56)

	focusStyle = borderStyle.
			BorderForeground(lipgloss.Color("62"))

	buttonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("28")).
			Padding(0, 1)

	disabledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)
)

const actionTimeout = 10 * time.Minute

// model 是应用程序的状态
type model struct {
	ctx  context.Context
	ctrl *trade.Controller

	changes     <-chan struct{}
	unsubscribe func()

	snap   trade.Snapshot
	focus  domain.Side
	inputs map[domain.Side]string
	busy   string
	notice string
}

// snapshotMsg 控制器状态变化
type snapshotMsg trade.Snapshot

// actionDoneMsg 链上操作结束
type actionDoneMsg struct {
	name string
	err  error
}

func newModel(ctx context.Context, ctrl *trade.Controller) model {
	changes, unsubscribe := ctrl.Subscribe()
	snap := ctrl.Snapshot()
	m := model{
		ctx:         ctx,
		ctrl:        ctrl,
		changes:     changes,
		unsubscribe: unsubscribe,
		snap:        snap,
		focus:       domain.SideOpening,
		inputs: map[domain.Side]string{
			domain.SideOpening: snap.Opening.Link,
			domain.SideClosing: snap.Closing.Link,
		},
	}
	return m
}

func (m model) Init() tea.Cmd {
	return waitChange(m.changes, m.ctrl)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		m.snap = trade.Snapshot(msg)
		// 成交模式下输入框跟随载入的交易
		if m.snap.ClosingMode {
			m.inputs[domain.SideOpening] = m.snap.Opening.Link
			m.inputs[domain.SideClosing] = m.snap.Closing.Link
		}
		return m, waitChange(m.changes, m.ctrl)

	case actionDoneMsg:
		m.busy = ""
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s 失败", msg.name)
		} else {
			m.notice = fmt.Sprintf("%s 已确认", msg.name)
		}
		m.snap = m.ctrl.Snapshot()
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.unsubscribe()
		return m, tea.Quit
	case "tab", "shift+tab":
		if m.focus == domain.SideOpening {
			m.focus = domain.SideClosing
		} else {
			m.focus = domain.SideOpening
		}
		return m, nil
	case "enter":
		raw := strings.TrimSpace(m.inputs[m.focus])
		var err error
		if m.focus == domain.SideOpening {
			err = m.ctrl.SetOpeningLink(raw)
		} else {
			err = m.ctrl.SetClosingLink(raw)
		}
		m.notice = ""
		if err != nil {
			m.notice = err.Error()
		}
		m.snap = m.ctrl.Snapshot()
		return m, nil
	case "backspace":
		if r := []rune(m.inputs[m.focus]); len(r) > 0 {
			m.inputs[m.focus] = string(r[:len(r)-1])
		}
		return m, nil
	case "ctrl+u":
		m.inputs[m.focus] = ""
		return m, nil
	case "ctrl+a":
		if m.snap.ClosingMode {
			return m.run("Approve Closing", m.ctrl.ApproveClosing)
		}
		return m.run("Approve Opening", m.ctrl.ApproveOpening)
	case "ctrl+o":
		return m.run("Open Trade", m.ctrl.OpenTrade)
	case "ctrl+t":
		return m.run(m.snap.Gating.TradeLabel, m.ctrl.CloseTrade)
	case "ctrl+e":
		m.ctrl.ClearError()
		m.notice = ""
		return m, nil
	}
	if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
		if !m.snap.ClosingMode {
			m.inputs[m.focus] += string(msg.Runes)
		}
	}
	return m, nil
}

// run 在后台执行链上操作，状态变化通过订阅刷新
func (m model) run(name string, fn func(context.Context) error) (tea.Model, tea.Cmd) {
	if m.busy != "" {
		m.notice = fmt.Sprintf("%s 进行中", m.busy)
		return m, nil
	}
	m.busy = name
	m.notice = ""
	ctx := m.ctx
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		return actionDoneMsg{name: name, err: fn(ctx)}
	}
}

func (m model) View() string {
	snap := m.snap
	var s strings.Builder

	account := snap.Account
	if account == "" {
		account = "未连接"
	}
	header := headerStyle.Render(fmt.Sprintf("PopSwap | %s | %s | %s", snap.NetworkLabel, account, snap.Phase))
	s.WriteString(header)
	s.WriteString("\n\n")

	opening := renderSide("Opening NFT", m.inputs[domain.SideOpening], snap.Opening, m.focus == domain.SideOpening && !snap.ClosingMode)
	closing := renderSide("Closing NFT", m.inputs[domain.SideClosing], snap.Closing, m.focus == domain.SideClosing && !snap.ClosingMode)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, opening, "  ", closing))
	s.WriteString("\n\n")

	s.WriteString(renderActions(snap))
	s.WriteString("\n")

	if snap.ShareID != "" || snap.Phase == domain.PhaseOpened {
		link := snap.ShareLink
		if link == "" {
			link = "(交易已开出，但回执中没有交易id)"
		}
		s.WriteString(okStyle.Render("分享链接: " + link))
		s.WriteString("\n")
	}
	if snap.Completed {
		s.WriteString(okStyle.Render("交易已完成"))
		s.WriteString("\n")
	}
	if snap.LastError != "" {
		s.WriteString(errStyle.Render("错误: " + snap.LastError))
		s.WriteString("\n")
	}
	if m.busy != "" {
		s.WriteString(dimStyle.Render(m.busy + " 等待确认..."))
		s.WriteString("\n")
	}
	if m.notice != "" {
		s.WriteString(dimStyle.Render(m.notice))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(dimStyle.Render("tab 切换 | enter 应用链接 | ctrl+u 清空 | ctrl+a 授权 | ctrl+o 开单 | ctrl+t 成交 | ctrl+e 清除错误 | esc 退出"))
	return s.String()
}

func renderSide(title, input string, v trade.SideView, focused bool) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	cursor := ""
	if focused {
		cursor = "█"
	}
	b.WriteString("> " + input + cursor + "\n")

	if !v.Asset.IsSet() {
		b.WriteString(dimStyle.Render("粘贴市场链接"))
		style := borderStyle
		if focused {
			style = focusStyle
		}
		return style.Render(b.String())
	}

	b.WriteString(fmt.Sprintf("合约: %s\n", v.Asset.ContractAddress))
	b.WriteString(fmt.Sprintf("Token: %s", v.Asset.TokenID))
	if v.Standard != "" {
		b.WriteString(fmt.Sprintf("  (%s)", v.Standard))
	}
	b.WriteString("\n")

	switch {
	case v.Probing:
		b.WriteString(dimStyle.Render("检查所有权..."))
	case v.Ownership.ErrorMessage != "":
		b.WriteString(errStyle.Render(v.Ownership.ErrorMessage))
	case v.Ownership.Approved:
		b.WriteString(okStyle.Render("已持有 · 已授权"))
	case v.Ownership.Owned:
		b.WriteString(okStyle.Render("已持有") + dimStyle.Render(" · 未授权"))
	default:
		b.WriteString(dimStyle.Render("未持有"))
	}
	b.WriteString("\n")

	switch {
	case v.Preview.Loading:
		b.WriteString(dimStyle.Render("预览加载中..."))
	case v.Preview.NotFound:
		b.WriteString(dimStyle.Render("预览不可用"))
	case v.Preview.URL != "":
		b.WriteString(fmt.Sprintf("%s: %s", v.Preview.Format, v.Preview.URL))
	}

	style := borderStyle
	if focused {
		style = focusStyle
	}
	return style.Render(b.String())
}

func renderActions(snap trade.Snapshot) string {
	g := snap.Gating
	var buttons []string
	if snap.ClosingMode {
		if snap.Completed {
			return okStyle.Render("✓ Trade Complete")
		}
		buttons = append(buttons,
			button("Approve Closing", g.CanApproveClosing),
			button(g.TradeLabel, g.CanTrade))
	} else {
		if !g.ShowOpeningActions {
			return dimStyle.Render("持有开单资产并填写两侧链接后可以开单")
		}
		buttons = append(buttons,
			button("Approve Opening", g.CanApproveOpening),
			button("Open Trade", g.CanOpenTrade))
	}
	return strings.Join(buttons, " ")
}

func button(label string, enabled bool) string {
	if enabled {
		return buttonStyle.Render(label)
	}
	return disabledStyle.Render(label)
}

// Commands

func waitChange(changes <-chan struct{}, ctrl *trade.Controller) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return snapshotMsg(ctrl.Snapshot())
	}
}

func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("POPSWAP_CONFIG"), "config file (.yaml/.yml/.json), empty = env only")
		swapID     = flag.String("swap", "", "existing trade id to inspect and close")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// 终端被 TUI 占用，日志只写文件
	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Quiet:      true,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	ctrl := a.NewController()
	if err := ctrl.Start(ctx, strings.TrimSpace(*swapID)); err != nil {
		logger.Warnf("载入交易 %s 失败: %v", *swapID, err)
	}

	p := tea.NewProgram(newModel(ctx, ctrl), tea.WithAltScreen())
	_, runErr := p.Run()

	cancel()
	ctrl.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = a.Shutdown.Shutdown(shutdownCtx)

	if runErr != nil {
		fmt.Fprintln(os.Stderr, "运行程序失败:", runErr)
		os.Exit(1)
	}
}

package domain

// Side 交易的哪一侧
type Side string

const (
	SideOpening Side = "opening"
	SideClosing Side = "closing"
)

// Phase 交易生命周期阶段
type Phase string

const (
	PhaseDrafting         Phase = "drafting"
	PhaseAwaitingApproval Phase = "awaiting_approval"
	PhaseApproving        Phase = "approving"
	PhaseSubmittingOpen   Phase = "submitting_open"
	PhaseOpened           Phase = "opened"
	PhaseInspectingClose  Phase = "inspecting_close"
	PhaseApprovingClose   Phase = "approving_close"
	PhaseSubmittingClose  Phase = "submitting_close"
	PhaseCompleted        Phase = "completed"
)

// Terminal 开单方的 Opened 与成交方的 Completed 为终态
func (p Phase) Terminal() bool {
	return p == PhaseOpened || p == PhaseCompleted
}

// TradeRecord getTradeByTradeId 返回的链上交易记录
type TradeRecord struct {
	TradeID string
	Opening AssetReference
	Closing AssetReference
	Expiry  int64
	// CompletionMarker 非零表示交易已成交
	CompletionMarker string
	Opener           string
}

// Completed 完成标记非零即视为已成交
func (r TradeRecord) Completed() bool {
	return r.CompletionMarker != "" && r.CompletionMarker != "0"
}

// ShareLink 生成分享链接 /swap/<shareId>，base 可为空
func ShareLink(base, shareID string) string {
	if shareID == "" {
		return ""
	}
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/swap/" + shareID
}

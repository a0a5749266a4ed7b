package domain

// PreviewFormat 预览媒体类型
type PreviewFormat string

const (
	FormatNone  PreviewFormat = ""
	FormatImage PreviewFormat = "image"
	FormatVideo PreviewFormat = "video"
)

// OwnershipState 某一侧资产的所有权/授权状态
// 只由所有权探测修改；资产引用变化时重置为零值
type OwnershipState struct {
	Owned        bool   `json:"owned"`
	Approved     bool   `json:"approved"`
	ErrorMessage string `json:"errorMessage"`
}

// Normalize 未持有的资产，其授权状态不可信
func (o OwnershipState) Normalize() OwnershipState {
	if !o.Owned {
		o.Approved = false
	}
	return o
}

// Preview 一次成功解析得到的可展示媒体
type Preview struct {
	URL    string        `json:"url"`
	Format PreviewFormat `json:"format"`
}

// PreviewState 某一侧的预览状态
// RenderKey 每次成功解析都会递增，前端据此重建 video 元素，避免旧资产继续播放
type PreviewState struct {
	URL       string        `json:"url"`
	Format    PreviewFormat `json:"format"`
	Loading   bool          `json:"loading"`
	NotFound  bool          `json:"notFound"`
	RenderKey int           `json:"renderKey"`
}

// Begin 开始解析：进入 loading，清掉 notFound
func (p PreviewState) Begin() PreviewState {
	p.Loading = true
	p.NotFound = false
	return p
}

// Resolved 解析成功
func (p PreviewState) Resolved(preview Preview) PreviewState {
	p.URL = preview.URL
	p.Format = preview.Format
	p.Loading = false
	p.NotFound = false
	p.RenderKey++
	return p
}

// Missing 所有来源都失败
func (p PreviewState) Missing() PreviewState {
	p.URL = ""
	p.Format = FormatNone
	p.Loading = false
	p.NotFound = true
	return p
}

// Reset 资产引用变化时清空，RenderKey 保留以保证单调递增
func (p PreviewState) Reset() PreviewState {
	return PreviewState{RenderKey: p.RenderKey}
}

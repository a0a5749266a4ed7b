// Package metadata 把 NFT 解析为可展示的预览（图片或视频地址）。
package metadata

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/popswap/gopopswap/internal/chain"
	"github.com/popswap/gopopswap/internal/domain"
	"github.com/popswap/gopopswap/internal/metrics"
	"github.com/popswap/gopopswap/pkg/cache"
	"github.com/popswap/gopopswap/pkg/httpclient"
	"github.com/popswap/gopopswap/pkg/ratelimit"
)

var log = logrus.WithField("component", "metadata")

const marketplaceLimiter = "marketplace"

var (
	errNoImage       = errors.New("metadata has no image")
	errNotIPFS       = errors.New("token uri is not an ipfs uri")
	errNoMetadataURI = errors.New("token has no metadata uri")
)

// Step 解析链中的一步；返回 error 表示交给下一步
type Step func(ctx context.Context) (domain.Preview, error)

// TryEach 依次执行，返回第一个成功的结果；全部失败返回 false
func TryEach(ctx context.Context, steps ...Step) (domain.Preview, bool) {
	for i, step := range steps {
		if ctx.Err() != nil {
			return domain.Preview{}, false
		}
		preview, err := step(ctx)
		if err == nil {
			return preview, true
		}
		log.WithError(err).Debugf("预览解析第 %d 步失败", i+1)
	}
	return domain.Preview{}, false
}

type Options struct {
	IPFSGateway       string
	ProbeGateway      string
	MarketplaceAPI    string
	MarketplaceAPIKey string
	Timeout           time.Duration
	CacheTTL          time.Duration
	MarketplaceRPS    int
}

// Resolver 元数据解析：链上 uri -> IPFS JSON -> 媒体地址，失败时回退到市场 API
type Resolver struct {
	opts     Options
	http     *httpclient.Client
	previews *cache.TTLCache[string, domain.Preview]
	limits   *ratelimit.Registry
}

// New ctx 控制缓存清理协程的生命周期
func New(ctx context.Context, opts Options) *Resolver {
	opts.IPFSGateway = strings.TrimRight(opts.IPFSGateway, "/")
	opts.ProbeGateway = strings.TrimRight(opts.ProbeGateway, "/")
	opts.MarketplaceAPI = strings.TrimRight(opts.MarketplaceAPI, "/")

	limits := ratelimit.NewRegistry()
	if opts.MarketplaceRPS > 0 {
		limits.Register(marketplaceLimiter, ratelimit.NewTokenBucket(float64(opts.MarketplaceRPS), opts.MarketplaceRPS))
	}

	return &Resolver{
		opts:     opts,
		http:     httpclient.New(httpclient.Options{Timeout: opts.Timeout, Retries: 1}),
		previews: cache.New[string, domain.Preview](ctx, opts.CacheTTL),
		limits:   limits,
	}
}

// Resolve 标准未知（两种探测都失败）时直接返回未找到，不发请求
func (r *Resolver) Resolve(ctx context.Context, token chain.Token, asset domain.AssetReference, standard domain.TokenStandard) (domain.Preview, bool) {
	if standard == domain.StandardUnknown || !asset.IsSet() {
		return domain.Preview{}, false
	}
	key := standard.String() + ":" + strings.ToLower(asset.ContractAddress) + "/" + asset.TokenID
	if preview, ok := r.previews.Get(key); ok {
		metrics.PreviewCacheHits.Add(1)
		return preview, true
	}

	preview, ok := TryEach(ctx,
		func(ctx context.Context) (domain.Preview, error) {
			return r.fromTokenURI(ctx, token, asset, standard)
		},
		func(ctx context.Context) (domain.Preview, error) {
			return r.fromMarketplace(ctx, asset)
		},
	)
	if !ok {
		metrics.PreviewMissing.Add(1)
		return preview, false
	}
	metrics.PreviewResolved.Add(1)
	r.previews.Set(key, preview, 0)
	log.WithFields(logrus.Fields{"asset": asset.String(), "format": preview.Format}).Debug("预览已解析")
	return preview, true
}

func (r *Resolver) fromTokenURI(ctx context.Context, token chain.Token, asset domain.AssetReference, standard domain.TokenStandard) (domain.Preview, error) {
	if token == nil {
		return domain.Preview{}, errNoMetadataURI
	}
	id, err := asset.TokenIDBig()
	if err != nil {
		return domain.Preview{}, err
	}
	uri, err := token.MetadataURI(ctx, standard, id)
	if err != nil {
		return domain.Preview{}, errors.Wrap(err, "read token uri")
	}
	if uri == "" {
		return domain.Preview{}, errNoMetadataURI
	}

	hash, ok := ipfsPath(uri)
	if !ok {
		// 包括直接指向市场 API 的 uri，统一交给下一步
		return domain.Preview{}, errors.Wrapf(errNotIPFS, "uri %q", uri)
	}

	var doc struct {
		Image string `json:"image"`
	}
	if err := r.http.GetJSON(ctx, r.opts.IPFSGateway+"/ipfs/"+hash, nil, &doc); err != nil {
		return domain.Preview{}, err
	}
	if doc.Image == "" {
		return domain.Preview{}, errNoImage
	}

	media, ok := ipfsPath(doc.Image)
	if !ok {
		return domain.Preview{URL: doc.Image, Format: domain.FormatImage}, nil
	}
	return domain.Preview{
		URL:    r.opts.IPFSGateway + "/ipfs/" + media,
		Format: r.mediaFormat(ctx, media),
	}, nil
}

// mediaFormat 图片网关拒绝的内容按视频处理
func (r *Resolver) mediaFormat(ctx context.Context, media string) domain.PreviewFormat {
	code, err := r.http.Probe(ctx, r.opts.ProbeGateway+"/ipfs/"+media)
	if err != nil || code < http.StatusOK || code >= http.StatusMultipleChoices {
		return domain.FormatVideo
	}
	return domain.FormatImage
}

func (r *Resolver) fromMarketplace(ctx context.Context, asset domain.AssetReference) (domain.Preview, error) {
	if err := r.limits.Wait(ctx, marketplaceLimiter); err != nil {
		return domain.Preview{}, err
	}
	var headers map[string]string
	if r.opts.MarketplaceAPIKey != "" {
		headers = map[string]string{"X-API-KEY": r.opts.MarketplaceAPIKey}
	}
	var doc struct {
		Image string `json:"image"`
	}
	url := r.opts.MarketplaceAPI + "/api/v1/metadata/" + asset.ContractAddress + "/" + asset.TokenID
	if err := r.http.GetJSON(ctx, url, headers, &doc); err != nil {
		return domain.Preview{}, err
	}
	if doc.Image == "" {
		return domain.Preview{}, errNoImage
	}
	return domain.Preview{URL: doc.Image, Format: domain.FormatImage}, nil
}

// ipfsPath 返回 "ipfs/" 之后的部分，也接受 ipfs:// 形式
func ipfsPath(uri string) (string, bool) {
	var rest string
	if idx := strings.Index(uri, "ipfs/"); idx >= 0 {
		rest = uri[idx+len("ipfs/"):]
	} else if strings.HasPrefix(uri, "ipfs://") {
		rest = strings.TrimPrefix(uri, "ipfs://")
	} else {
		return "", false
	}
	return rest, rest != ""
}

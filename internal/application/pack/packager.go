// Package pack 将构建产物装配为可部署的执行单元
//
// 执行单元受平台硬性大小上限约束：超出 HardLimit 的包无法部署。
// 打包器按"关键资源内嵌、非关键资源外置"的贪心策略放置资源，
// 同一输入永远产出同一包。
package pack

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"z-webforge-api/internal/config"
	"z-webforge-api/pkg/errors"
	"z-webforge-api/pkg/metrics"
)

// Limits 打包大小约束
// SafeLimit 必须低于 HardLimit，留出运行时开销的余量。
type Limits struct {
	HardLimit      int64
	SafeLimit      int64
	SmallThreshold int64
}

// Placement 资源放置结果
type Placement string

const (
	PlacementEmbedded  Placement = "embedded"
	PlacementOffloaded Placement = "offloaded"
)

// Asset 参与打包的单个资源
type Asset struct {
	Path      string
	Content   []byte
	Critical  bool
	Placement Placement
}

// Stats 打包统计
type Stats struct {
	OriginalBytes  int64 `json:"original_bytes"`
	EmbeddedBytes  int64 `json:"embedded_bytes"`
	OffloadedBytes int64 `json:"offloaded_bytes"`
	EmbeddedCount  int   `json:"embedded_count"`
	OffloadedCount int   `json:"offloaded_count"`
}

// Package 装配完成的部署包
type Package struct {
	ID              string
	ProjectID       string
	WorkerScript    []byte
	Embedded        map[string][]byte
	Offloaded       map[string][]byte
	CDNURLs         map[string]string
	Stats           Stats
	Recommendations []string
}

// Packager 部署打包器
type Packager struct {
	limits     Limits
	cdnBaseURL string
}

// NewPackager 创建打包器
func NewPackager(cfg config.PackagerConfig) *Packager {
	return &Packager{
		limits: Limits{
			HardLimit:      cfg.HardLimitBytes,
			SafeLimit:      cfg.SafeLimitBytes,
			SmallThreshold: cfg.SmallAssetThreshold,
		},
		cdnBaseURL: strings.TrimRight(cfg.CDNBaseURL, "/"),
	}
}

// Optimize 将构建产物装配为部署包
//
// 放置规则（按序应用，全程确定性）：
//  1. 关键且小于阈值的资源内嵌
//  2. 非关键资源一律外置
//  3. 关键大资源先尝试内嵌；内嵌总量超过 SafeLimit 时，
//     按体积从大到小外置关键大资源直至回到安全水位；
//     入口文档必须由执行单元直接应答首个请求，永不外置
//  4. 处理后内嵌总量仍超 HardLimit 则打包失败
//
// 每个资源恰好落在 Embedded 与 Offloaded 之一。
func (p *Packager) Optimize(projectID string, files map[string][]byte) (*Package, error) {
	assets := classify(files)

	var embeddedTotal int64
	for i := range assets {
		a := &assets[i]
		if a.Critical {
			a.Placement = PlacementEmbedded
			embeddedTotal += int64(len(a.Content))
		} else {
			a.Placement = PlacementOffloaded
		}
	}

	var recommendations []string

	// 超过安全水位：按体积降序外置关键大资源，体积相同按路径定序
	if embeddedTotal > p.limits.SafeLimit {
		demotable := make([]*Asset, 0, len(assets))
		for i := range assets {
			a := &assets[i]
			if a.Placement == PlacementEmbedded &&
				int64(len(a.Content)) > p.limits.SmallThreshold &&
				!isEntryDocument(a.Path) {
				demotable = append(demotable, a)
			}
		}
		sort.Slice(demotable, func(i, j int) bool {
			if len(demotable[i].Content) != len(demotable[j].Content) {
				return len(demotable[i].Content) > len(demotable[j].Content)
			}
			return demotable[i].Path < demotable[j].Path
		})

		for _, a := range demotable {
			if embeddedTotal <= p.limits.SafeLimit {
				break
			}
			a.Placement = PlacementOffloaded
			embeddedTotal -= int64(len(a.Content))
			recommendations = append(recommendations,
				fmt.Sprintf("moved %s (%d bytes) to CDN to stay under the safe embed limit", a.Path, len(a.Content)))
		}
	}

	if embeddedTotal > p.limits.SafeLimit && embeddedTotal <= p.limits.HardLimit {
		recommendations = append(recommendations,
			fmt.Sprintf("embedded payload %d bytes is above the safe limit %d bytes; consider slimming the entry document", embeddedTotal, p.limits.SafeLimit))
	}

	if embeddedTotal > p.limits.HardLimit {
		metrics.PackagerSizeViolations.Inc()
		return nil, errors.ErrSizeViolation.
			WithDetail(fmt.Sprintf("embedded payload %d bytes exceeds hard limit %d bytes", embeddedTotal, p.limits.HardLimit)).
			WithSuggestions(
				"split large inline content into separate asset files so they can be served from the CDN",
				"reduce the size of the entry document and its first-load script",
			)
	}

	pkg := &Package{
		ProjectID: projectID,
		Embedded:  make(map[string][]byte),
		Offloaded: make(map[string][]byte),
		CDNURLs:   make(map[string]string),
	}

	for _, a := range assets {
		size := int64(len(a.Content))
		pkg.Stats.OriginalBytes += size
		switch a.Placement {
		case PlacementEmbedded:
			pkg.Embedded[a.Path] = a.Content
			pkg.Stats.EmbeddedBytes += size
			pkg.Stats.EmbeddedCount++
		case PlacementOffloaded:
			pkg.Offloaded[a.Path] = a.Content
			pkg.CDNURLs[a.Path] = p.CDNAssetURL(projectID, a.Path)
			pkg.Stats.OffloadedBytes += size
			pkg.Stats.OffloadedCount++
		}
	}

	pkg.Recommendations = recommendations
	pkg.WorkerScript = renderWorkerScript(pkg)
	pkg.ID = packageID(pkg)

	metrics.PackagerEmbeddedBytes.Observe(float64(pkg.Stats.EmbeddedBytes))
	metrics.PackagerOffloadedBytes.Observe(float64(pkg.Stats.OffloadedBytes))
	return pkg, nil
}

// CDNAssetURL 外置资源的 CDN 地址，对同一 (项目, 路径) 恒定
func (p *Packager) CDNAssetURL(projectID, path string) string {
	return p.cdnBaseURL + "/" + projectID + "/" + strings.TrimLeft(path, "/")
}

// classify 标注资源的关键性，返回按路径排序的资源表
func classify(files map[string][]byte) []Asset {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	assets := make([]Asset, 0, len(paths))
	for _, path := range paths {
		assets = append(assets, Asset{
			Path:     path,
			Content:  files[path],
			Critical: isCritical(path),
		})
	}
	return assets
}

// isEntryDocument 入口文档判定
func isEntryDocument(path string) bool {
	return strings.TrimLeft(path, "/") == "index.html"
}

// isCritical 首屏渲染必需的资源视为关键资源
func isCritical(path string) bool {
	base := path[strings.LastIndex(path, "/")+1:]
	switch base {
	case "index.html", "app.js", "main.js", "index.js", "styles.css", "main.css", "index.css":
		return true
	}
	return false
}

// renderWorkerScript 生成执行单元入口脚本
// 输出只依赖包内容的有序遍历，保证字节级可复现。
func renderWorkerScript(pkg *Package) []byte {
	var b strings.Builder
	b.WriteString("// generated worker entrypoint\n")
	b.WriteString("const EMBEDDED = new Set([\n")
	for _, path := range sortedKeys(pkg.Embedded) {
		fmt.Fprintf(&b, "  %q,\n", "/"+strings.TrimLeft(path, "/"))
	}
	b.WriteString("]);\n")
	b.WriteString("const CDN = {\n")
	for _, path := range sortedKeys(pkg.Offloaded) {
		fmt.Fprintf(&b, "  %q: %q,\n", "/"+strings.TrimLeft(path, "/"), pkg.CDNURLs[path])
	}
	b.WriteString("};\n")
	b.WriteString(`export default {
  async fetch(request, env) {
    const url = new URL(request.url);
    const path = url.pathname === "/" ? "/index.html" : url.pathname;
    if (EMBEDDED.has(path)) {
      return env.ASSETS.fetch(request);
    }
    const cdn = CDN[path];
    if (cdn) {
      return Response.redirect(cdn, 302);
    }
    return env.ASSETS.fetch(new Request(new URL("/index.html", request.url), request));
  },
};
`)
	return []byte(b.String())
}

// packageID 包内容指纹，相同输入得到相同 ID
func packageID(pkg *Package) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", pkg.ProjectID)
	for _, path := range sortedKeys(pkg.Embedded) {
		fmt.Fprintf(h, "e %s %d\n", path, len(pkg.Embedded[path]))
		h.Write(pkg.Embedded[path])
	}
	for _, path := range sortedKeys(pkg.Offloaded) {
		fmt.Fprintf(h, "o %s %d\n", path, len(pkg.Offloaded[path]))
		h.Write(pkg.Offloaded[path])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

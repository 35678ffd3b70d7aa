package pack

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-webforge-api/internal/config"
	"z-webforge-api/pkg/errors"
)

func testPackager() *Packager {
	return NewPackager(config.PackagerConfig{
		HardLimitBytes:      1 << 20,   // 1MB
		SafeLimitBytes:      900 << 10, // 900KB
		SmallAssetThreshold: 64 << 10,  // 64KB
		CDNBaseURL:          "https://cdn.webforge.dev/",
	})
}

func blob(size int) []byte {
	return bytes.Repeat([]byte{'x'}, size)
}

func TestOptimize_SafePackaging(t *testing.T) {
	p := testPackager()
	assets := map[string][]byte{
		"index.html": blob(10 << 10),
		"main.js":    blob(30 << 10),
		"vendor.js":  blob(200 << 10),
		"styles.css": blob(700 << 10),
	}

	pkg, err := p.Optimize("p1", assets)
	require.NoError(t, err)

	// 关键资源合计 740KB，低于安全水位，全部内嵌
	assert.Len(t, pkg.Embedded, 3)
	assert.Contains(t, pkg.Embedded, "index.html")
	assert.Contains(t, pkg.Embedded, "main.js")
	assert.Contains(t, pkg.Embedded, "styles.css")

	assert.Len(t, pkg.Offloaded, 1)
	assert.Contains(t, pkg.Offloaded, "vendor.js")
	assert.Equal(t, "https://cdn.webforge.dev/p1/vendor.js", pkg.CDNURLs["vendor.js"])

	assert.Equal(t, int64(740<<10), pkg.Stats.EmbeddedBytes)
	assert.Equal(t, int64(200<<10), pkg.Stats.OffloadedBytes)
	assert.Equal(t, int64(940<<10), pkg.Stats.OriginalBytes)
	assert.Empty(t, pkg.Recommendations)
}

func TestOptimize_ForcedOffload(t *testing.T) {
	p := testPackager()
	assets := map[string][]byte{
		"index.html": blob(10 << 10),
		"main.js":    blob(30 << 10),
		"vendor.js":  blob(200 << 10),
		"styles.css": blob(950 << 10),
	}

	pkg, err := p.Optimize("p1", assets)
	require.NoError(t, err)

	// 990KB > 900KB：最大的关键大资源 styles.css 被外置
	assert.Len(t, pkg.Embedded, 2)
	assert.Contains(t, pkg.Embedded, "index.html")
	assert.Contains(t, pkg.Embedded, "main.js")

	assert.Len(t, pkg.Offloaded, 2)
	assert.Contains(t, pkg.Offloaded, "styles.css")
	assert.Contains(t, pkg.Offloaded, "vendor.js")

	assert.Equal(t, int64(40<<10), pkg.Stats.EmbeddedBytes)
	assert.NotEmpty(t, pkg.Recommendations)
}

func TestOptimize_HardViolation(t *testing.T) {
	p := testPackager()
	assets := map[string][]byte{
		"index.html": blob(1200 << 10),
	}

	pkg, err := p.Optimize("p1", assets)
	require.Error(t, err)
	assert.Nil(t, pkg, "no partial package on violation")
	assert.ErrorIs(t, err, errors.ErrSizeViolation)

	appErr := errors.AsAppError(err)
	assert.NotEmpty(t, appErr.Suggestions)
}

func TestOptimize_TotalityAndDisjointness(t *testing.T) {
	p := testPackager()
	assets := map[string][]byte{
		"index.html":       blob(10 << 10),
		"main.js":          blob(80 << 10),
		"styles.css":       blob(500 << 10),
		"app.js":           blob(450 << 10),
		"fonts/inter.woff": blob(300 << 10),
		"data/seed.json":   blob(5 << 10),
	}

	pkg, err := p.Optimize("p1", assets)
	require.NoError(t, err)

	for path := range assets {
		_, embedded := pkg.Embedded[path]
		_, offloaded := pkg.Offloaded[path]
		assert.True(t, embedded != offloaded, "%s must be in exactly one set", path)
	}
	assert.Equal(t, len(assets), pkg.Stats.EmbeddedCount+pkg.Stats.OffloadedCount)
	assert.LessOrEqual(t, pkg.Stats.EmbeddedBytes, int64(900<<10))

	// 每个外置资源都有 CDN 地址
	for path := range pkg.Offloaded {
		assert.NotEmpty(t, pkg.CDNURLs[path])
	}
	for path := range pkg.Embedded {
		assert.NotContains(t, pkg.CDNURLs, path)
	}
}

func TestOptimize_Deterministic(t *testing.T) {
	p := testPackager()
	assets := map[string][]byte{
		"index.html": blob(10 << 10),
		"main.js":    blob(300 << 10),
		"styles.css": blob(400 << 10),
		"extra.css":  blob(400 << 10),
		"vendor.js":  blob(120 << 10),
	}

	first, err := p.Optimize("p1", assets)
	require.NoError(t, err)
	second, err := p.Optimize("p1", assets)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.WorkerScript, second.WorkerScript)
	assert.Equal(t, first.Embedded, second.Embedded)
	assert.Equal(t, first.Offloaded, second.Offloaded)
	assert.Equal(t, first.CDNURLs, second.CDNURLs)
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first.Recommendations, second.Recommendations)
}

func TestOptimize_EntryDocumentNeverOffloaded(t *testing.T) {
	p := testPackager()
	assets := map[string][]byte{
		"index.html": blob(950 << 10),
		"main.js":    blob(30 << 10),
	}

	pkg, err := p.Optimize("p1", assets)
	require.NoError(t, err)

	// 入口文档超过安全水位但仍在硬上限内：保持内嵌并给出提示
	assert.Contains(t, pkg.Embedded, "index.html")
	assert.Greater(t, pkg.Stats.EmbeddedBytes, int64(900<<10))
	assert.NotEmpty(t, pkg.Recommendations)
}

func TestOptimize_WorkerScriptRoutesOffloadedAssets(t *testing.T) {
	p := testPackager()
	assets := map[string][]byte{
		"index.html": blob(10 << 10),
		"vendor.js":  blob(100 << 10),
	}

	pkg, err := p.Optimize("p1", assets)
	require.NoError(t, err)

	script := string(pkg.WorkerScript)
	assert.Contains(t, script, `"/index.html"`)
	assert.Contains(t, script, `"https://cdn.webforge.dev/p1/vendor.js"`)
}

func TestCDNAssetURL_Stable(t *testing.T) {
	p := testPackager()
	assert.Equal(t, p.CDNAssetURL("p1", "a/b.css"), p.CDNAssetURL("p1", "a/b.css"))
	assert.Equal(t, "https://cdn.webforge.dev/p1/a/b.css", p.CDNAssetURL("p1", "/a/b.css"))
}

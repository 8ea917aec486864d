package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/zintix-labs/ibslab/spec"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat/distuv"
)

var lang language.Tag = language.English

// 信賴區間
type CI struct {
	Lo float64 `json:"Lo"`
	Hi float64 `json:"Hi"`
}

// PointStat 點估計 回傳 估計值 以及信賴區間
type PointStat struct {
	Hat float64 `json:"Hat"`
	CI  CI      `json:"CI"`
}

// CalibReport 校準統計報告
//
// 一次校準 = 對同一份觀測資料集跑 Trials 次獨立估計。
// 報告回答兩個問題：
//  1. 估計器準不準：跨 trial 的 LogP 均值 vs 解析解（模型支援 Exact 時）。
//  2. 回報的 Std 可不可信：真值落在 ±1σ / ±2σ 的覆蓋率應接近 68% / 95%。
type CalibReport struct {
	Summary *SummaryReport `json:"Summary"`
	Est     *EstReport     `json:"Est"`
	Cover   *CoverReport   `json:"Cover,omitzero"`
	isDone  bool
}

type SummaryReport struct {
	ModelName  string   `json:"ModelName"`
	ModelID    spec.MID `json:"ModelID"`
	Items      int      `json:"Items"`
	Trials     int      `json:"Trials"`
	Truncated  int      `json:"Truncated"` // 被地板裁剪（未收斂）的 trial 數
	TotalCalls int64    `json:"TotalCalls"`
}

// EstReport 估計值統計
//
// 紀錄時只累積和與平方和，避免保存整條序列。紀錄完成後 Done() 會將結果整理填入。
type EstReport struct {
	LogPSum   float64 `json:"LogPSum"`   // 收斂 trial 的 LogP 總和
	LogPSqSum float64 `json:"LogPSqSum"` // 平方和
	StdSum    float64 `json:"StdSum"`    // 收斂 trial 回報的 Std 總和

	MeanLogP     float64  `json:"MeanLogP"`           // 跨 trial 平均 LogP
	SpreadLogP   float64  `json:"SpreadLogP"`         // 跨 trial 的 LogP 標準差（實測變異）
	MeanStd      float64  `json:"MeanStd"`            // trial 回報 Std 的平均（估計器自評變異）
	CallsPerItem float64  `json:"CallsPerItem"`       // 平均每 item 的模擬呼叫數
	TrueLogP     *float64 `json:"TrueLogP,omitempty"` // 解析解（模型支援時）
	Bias         *float64 `json:"Bias,omitempty"`     // MeanLogP − TrueLogP
	AbsRelErr    *float64 `json:"AbsRelErr,omitempty"`
}

// CoverReport 覆蓋率統計（只在有解析解時產生）
//
// WithinOne / WithinTwo：真值落在「trial 估計 ± 1σ/2σ」的 trial 比例，
// 估計量與回報變異都正確時應接近 68% / 95%。CI 為 Clopper–Pearson 95%。
type CoverReport struct {
	OneSigmaHits int       `json:"OneSigmaHits"`
	TwoSigmaHits int       `json:"TwoSigmaHits"`
	WithinOne    PointStat `json:"WithinOne"`
	WithinTwo    PointStat `json:"WithinTwo"`
}

// ============================================================
// ** 公開方法 **
// ============================================================

// Done 將累積計數轉換為最終統計結果並鎖定 isDone 標記。
//
// 校準紀錄過程只累積和/平方和/命中數，統計完成後請呼叫 Done 一次性計算結果。
func (c *CalibReport) Done() {
	if c.isDone {
		return
	}

	n := c.Summary.Trials - c.Summary.Truncated // 收斂 trial 數
	if n > 0 {
		fn := float64(n)
		c.Est.MeanLogP = c.Est.LogPSum / fn
		c.Est.MeanStd = c.Est.StdSum / fn
		if n > 1 {
			variance := (c.Est.LogPSqSum - c.Est.LogPSum*c.Est.LogPSum/fn) / (fn - 1)
			if variance < 0 {
				variance = 0
			}
			c.Est.SpreadLogP = math.Sqrt(variance)
		}
		if c.Summary.Items > 0 {
			c.Est.CallsPerItem = float64(c.Summary.TotalCalls) / float64(c.Summary.Items) / float64(c.Summary.Trials)
		}
		if c.Est.TrueLogP != nil {
			bias := c.Est.MeanLogP - *c.Est.TrueLogP
			c.Est.Bias = &bias
			if *c.Est.TrueLogP != 0 {
				rel := math.Abs(bias / *c.Est.TrueLogP)
				c.Est.AbsRelErr = &rel
			}
		}
	}

	if c.Cover != nil && n > 0 {
		oneHat, oneCI := proportionCICP(c.Cover.OneSigmaHits, n, 0.95)
		twoHat, twoCI := proportionCICP(c.Cover.TwoSigmaHits, n, 0.95)
		c.Cover.WithinOne = PointStat{Hat: oneHat, CI: oneCI}
		c.Cover.WithinTwo = PointStat{Hat: twoHat, CI: twoCI}
	}

	c.isDone = true
}

func (c *CalibReport) WriteWith(w io.Writer, rep CalibReportRender) error {
	c.Done()
	return rep.Write(w, c)
}

func (c *CalibReport) StdOut(ut time.Duration) {
	formatDuration(ut, int(c.Summary.TotalCalls))
	sk, sm := c.fmtBasic()
	str := fmtTable(c.Summary.ModelName, sk, sm)
	fmt.Println(str)
}

// ============================================================
// ** 內部統計函數 **
// ============================================================

// Clopper–Pearson exact CI for binomial proportion (k successes out of n)
func proportionCICP(k int, n int, confidence float64) (pHat float64, ci CI) {
	if n == 0 {
		return 0, CI{0, 1}
	}
	alpha := 1 - confidence
	pHat = float64(k) / float64(n)

	// Beta PPF 映射，處理邊界
	if k == 0 {
		ci.Lo = 0
	} else {
		b := distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}
		ci.Lo = b.Quantile(alpha / 2)
	}
	if k == n {
		ci.Hi = 1
	} else {
		b := distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}
		ci.Hi = b.Quantile(1 - alpha/2)
	}
	return
}

// ============================================================
// ** 輸出函數 **
// ============================================================

func formatDuration(d time.Duration, calls int) {
	p := message.NewPrinter(lang)
	if d < 0 {
		d = -d
	}
	sec := d.Seconds()
	if sec <= 0 {
		sec = 1e-9
	}
	cps := int(float64(calls) / sec)
	if sec < 60.0 {
		p.Printf("used: %.2f seconds\ncps : %d calls/sec\n", sec, cps)
		return
	}
	s := int(d.Seconds()) % 60
	m := int(d.Minutes()) % 60
	h := int(d.Hours())
	if h == 0 {
		s = s % 60
		p.Printf("used: %dm %ds\ncps : %d calls/sec\n", m, s, cps)
		return
	}
	p.Printf("used: %dh:%dm:%ds\ncps : %d calls/sec\n", h, m, s, cps)
}

// StdOut

func (c *CalibReport) fmtBasic() ([]string, map[string]string) {
	p := message.NewPrinter(lang)
	basic := map[string]string{
		"Model Name":     p.Sprintf("%s", c.Summary.ModelName),
		"Model ID":       fmt.Sprintf("%d", c.Summary.ModelID),
		"Items":          p.Sprintf("%d", c.Summary.Items),
		"Trials":         p.Sprintf("%d", c.Summary.Trials),
		"Truncated":      p.Sprintf("%d", c.Summary.Truncated),
		"Total Calls":    p.Sprintf("%d", c.Summary.TotalCalls),
		"Calls per Item": p.Sprintf("%.2f", c.Est.CallsPerItem),
		"Mean LogP":      p.Sprintf("%.4f", c.Est.MeanLogP),
		"Spread LogP":    p.Sprintf("%.4f", c.Est.SpreadLogP),
		"Mean Std":       p.Sprintf("%.4f", c.Est.MeanStd),
	}
	keys := []string{"Model Name", "Model ID", "Items", "Trials", "Truncated", "Total Calls", "Calls per Item", "Mean LogP", "Spread LogP", "Mean Std"}

	if c.Est.TrueLogP != nil {
		basic["True LogP"] = p.Sprintf("%.4f", *c.Est.TrueLogP)
		keys = append(keys, "True LogP")
	}
	if c.Est.Bias != nil {
		basic["Bias"] = p.Sprintf("%+.4f", *c.Est.Bias)
		keys = append(keys, "Bias")
	}
	if c.Cover != nil {
		basic["Cover 1σ"] = fmtHatCIpct01(c.Cover.WithinOne.Hat, c.Cover.WithinOne.CI)
		basic["Cover 2σ"] = fmtHatCIpct01(c.Cover.WithinTwo.Hat, c.Cover.WithinTwo.CI)
		keys = append(keys, "Cover 1σ", "Cover 2σ")
	}
	return keys, basic
}

func fmtPct01(x float64) string {
	return fmt.Sprintf("%.2f%%", x*100)
}

func fmtHatCIpct01(hat float64, ci CI) string {
	return fmt.Sprintf("%s [%s, %s]", fmtPct01(hat), fmtPct01(ci.Lo), fmtPct01(ci.Hi))
}

func fmtTable(title string, keys []string, msg map[string]string) string {
	p := message.NewPrinter(lang)
	maxKeyLen := 0
	maxValLen := 0
	for k, m := range msg {
		if w := runewidth.StringWidth(k); w > maxKeyLen {
			maxKeyLen = w
		}
		if w := runewidth.StringWidth(m); w > maxValLen {
			maxValLen = w
		}
	}
	maxKeyLen += 2
	maxValLen += 2

	divider := "+" + strings.Repeat("-", maxKeyLen) + "+" + strings.Repeat("-", maxValLen) + "+\n"
	top := "+" + strings.Repeat("-", maxKeyLen+1+maxValLen) + "+\n"

	totalInner := maxKeyLen + maxValLen + 1
	titleW := runewidth.StringWidth(title)

	left := (totalInner - titleW) / 2
	right := totalInner - titleW - left

	fmtStr := top
	fmtStr += p.Sprintf("|%s%s%s|\n", blank(left), title, blank(right))
	fmtStr += divider
	for _, k := range keys {
		fmtStr += p.Sprintf("| %s%s | %s%s |\n", k, blank(maxKeyLen-2-runewidth.StringWidth(k)), msg[k], blank(maxValLen-2-runewidth.StringWidth(msg[k])))
	}
	fmtStr += divider

	return fmtStr
}

func blank(w int) string {
	if w < 1 {
		return ""
	}
	return strings.Repeat(" ", w)
}

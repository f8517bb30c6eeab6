package layout

import (
	"fmt"
	"math"

	"droplab/internal/canvas"
)

// Strategy 是画布尺寸变换的策略。
type Strategy string

const (
	// StrategyScale 按比例缩放全部对象。
	StrategyScale Strategy = "scale"
	// StrategyCrop 仅平移对象，不改变缩放，可能裁掉边缘内容。
	StrategyCrop Strategy = "crop"
	// StrategyReflow 预留的智能重排策略，目前明确回退到 scale。
	StrategyReflow Strategy = "reflow"
)

// 推荐阈值：面积变化 ±30% 且宽高比近似时建议 crop；宽高比剧变时建议 reflow。
const (
	cropAreaTolerance    = 0.3
	cropAspectThreshold  = 0.1
	reflowAspectThreshold = 0.5
)

// Options 控制缩放行为。
type Options struct {
	MaintainAspectRatio bool
	CenterContent       bool
}

// Result 汇总一次 resize 的产出。
type Result struct {
	Doc         *canvas.Document
	Strategy    Strategy
	Applied     Strategy // reflow 回退时与 Strategy 不同
	ScaleX      float64
	ScaleY      float64
	OffsetX     float64
	OffsetY     float64
	OutOfBounds []int // crop 后越界对象的下标，非致命
}

// Resize 把文档从 cur 格式变换到 tgt 格式，返回新文档，输入不被修改。
func Resize(doc *canvas.Document, cur, tgt Format, strategy Strategy, opts Options) (*Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	if cur.WidthPx <= 0 || cur.HeightPx <= 0 || tgt.WidthPx <= 0 || tgt.HeightPx <= 0 {
		return nil, fmt.Errorf("invalid format dimensions: %s -> %s", cur.Key, tgt.Key)
	}

	out := doc.Clone()
	res, err := resizeInto(out, cur, tgt, strategy, opts)
	if err != nil {
		return nil, err
	}
	res.Doc = out
	return res, nil
}

// ResizeInPlace 直接改写调用方独占的文档实例，并更新画布尺寸。
// 与 Personalize 的 clone-then-return 约定不同：resize 合法地原地操作。
// 不支持对同一文档并发调用。
func ResizeInPlace(doc *canvas.Document, cur, tgt Format, strategy Strategy, opts Options) (*Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	res, err := resizeInto(doc, cur, tgt, strategy, opts)
	if err != nil {
		return nil, err
	}
	doc.Width = tgt.WidthPx
	doc.Height = tgt.HeightPx
	res.Doc = doc
	return res, nil
}

func resizeInto(doc *canvas.Document, cur, tgt Format, strategy Strategy, opts Options) (*Result, error) {
	applied := strategy
	if strategy == StrategyReflow {
		// reflow 尚未实现，文档化回退到 scale。扩展点：按对象语义重排布局。
		applied = StrategyScale
	}

	switch applied {
	case StrategyScale:
		return applyScale(doc, cur, tgt, strategy, opts), nil
	case StrategyCrop:
		return applyCrop(doc, cur, tgt, strategy), nil
	default:
		return nil, fmt.Errorf("unknown resize strategy %q", strategy)
	}
}

func applyScale(doc *canvas.Document, cur, tgt Format, requested Strategy, opts Options) *Result {
	ratioX := tgt.WidthPx / cur.WidthPx
	ratioY := tgt.HeightPx / cur.HeightPx

	var offsetX, offsetY float64
	if opts.MaintainAspectRatio {
		// fit 而不是 fill：取较小比例，必要时按对称偏移居中。
		uniform := math.Min(ratioX, ratioY)
		if opts.CenterContent {
			offsetX = (tgt.WidthPx - cur.WidthPx*uniform) / 2
			offsetY = (tgt.HeightPx - cur.HeightPx*uniform) / 2
		}
		ratioX, ratioY = uniform, uniform
	}

	for i := range doc.Objects {
		obj := &doc.Objects[i]
		obj.Left = obj.Left*ratioX + offsetX
		obj.Top = obj.Top*ratioY + offsetY
		// 乘在既有缩放上，不是替换。
		obj.ScaleX = obj.EffectiveScaleX() * ratioX
		obj.ScaleY = obj.EffectiveScaleY() * ratioY
	}

	return &Result{
		Strategy: requested,
		Applied:  StrategyScale,
		ScaleX:   ratioX,
		ScaleY:   ratioY,
		OffsetX:  offsetX,
		OffsetY:  offsetY,
	}
}

func applyCrop(doc *canvas.Document, cur, tgt Format, requested Strategy) *Result {
	offsetX := (tgt.WidthPx - cur.WidthPx) / 2
	offsetY := (tgt.HeightPx - cur.HeightPx) / 2

	var outOfBounds []int
	for i := range doc.Objects {
		obj := &doc.Objects[i]
		obj.Left += offsetX
		obj.Top += offsetY

		if obj.Left < 0 || obj.Top < 0 ||
			obj.Left+obj.BoundingWidth() > tgt.WidthPx ||
			obj.Top+obj.BoundingHeight() > tgt.HeightPx {
			outOfBounds = append(outOfBounds, i)
		}
	}

	return &Result{
		Strategy:    requested,
		Applied:     StrategyCrop,
		ScaleX:      1,
		ScaleY:      1,
		OffsetX:     offsetX,
		OffsetY:     offsetY,
		OutOfBounds: outOfBounds,
	}
}

// RecommendStrategy 给出建议策略，仅供参考，不强制。
func RecommendStrategy(cur, tgt Format) Strategy {
	aspectDiff := math.Abs(cur.AspectRatio() - tgt.AspectRatio())
	areaRatio := tgt.Area() / cur.Area()

	if math.Abs(areaRatio-1) <= cropAreaTolerance && aspectDiff < cropAspectThreshold {
		return StrategyCrop
	}
	if aspectDiff > reflowAspectThreshold {
		return StrategyReflow
	}
	return StrategyScale
}

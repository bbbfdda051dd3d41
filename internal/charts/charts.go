// Package charts рисует графики для ежедневного отчета администраторам.
package charts

import (
	"bytes"
	"fmt"

	"github.com/ivanoskov/signal_bot/internal/model"
	"github.com/wcharczuk/go-chart/v2"
)

var statusLabels = []struct {
	status model.SubscriptionStatus
	label  string
	color  chart.Style
}{
	{model.StatusActive, "Активные", chart.Style{FillColor: chart.ColorGreen}},
	{model.StatusPending, "Ожидают", chart.Style{FillColor: chart.ColorOrange}},
	{model.StatusExpired, "Истекшие", chart.Style{FillColor: chart.ColorRed}},
	{model.StatusNone, "Без подписки", chart.Style{FillColor: chart.ColorAlternateGray}},
}

// ChartGenerator генерирует графики по агрегированной статистике
type ChartGenerator struct{}

func NewChartGenerator() *ChartGenerator {
	return &ChartGenerator{}
}

// StatusPie круговая диаграмма пользователей по статусам подписки.
// Возвращает nil, nil если пользователей нет.
func (g *ChartGenerator) StatusPie(stats *model.Stats) ([]byte, error) {
	if stats == nil {
		return nil, nil
	}

	total := 0
	for _, n := range stats.ByStatus {
		total += n
	}
	if total == 0 {
		return nil, nil
	}

	values := make([]chart.Value, 0, len(statusLabels))
	for _, s := range statusLabels {
		n := stats.ByStatus[s.status]
		if n == 0 {
			continue
		}
		style := s.color
		style.FontSize = 12
		style.FontColor = chart.ColorBlack
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %d (%.1f%%)", s.label, n, float64(n)/float64(total)*100),
			Value: float64(n),
			Style: style,
		})
	}

	pie := chart.PieChart{
		Title:  "Пользователи по статусам",
		Width:  800,
		Height: 800,
		Values: values,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   50,
				Right:  50,
				Bottom: 50,
			},
			FillColor: chart.ColorWhite,
		},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := pie.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render status pie chart: %w", err)
	}
	return buffer.Bytes(), nil
}

// PlanBar столбчатая диаграмма пользователей по тарифам
func (g *ChartGenerator) PlanBar(stats *model.Stats) ([]byte, error) {
	if stats == nil {
		return nil, nil
	}

	bars := make([]chart.Value, 0, 3)
	top := 0
	for _, plan := range model.Plans() {
		n := stats.ByPlan[plan.Key]
		top = max(top, n)
		bars = append(bars, chart.Value{
			Label: fmt.Sprintf("%s: %d", plan.Name, n),
			Value: float64(n),
			Style: chart.Style{
				StrokeColor: chart.ColorBlue,
				FillColor:   chart.ColorBlue,
				FontSize:    12,
				FontColor:   chart.ColorBlack,
			},
		})
	}
	if top == 0 {
		return nil, nil
	}

	graph := chart.BarChart{
		Title: "Пользователи по тарифам",
		TitleStyle: chart.Style{
			FontSize:  14,
			FontColor: chart.ColorBlack,
		},
		Width:    1200,
		Height:   600,
		BarWidth: 120,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   50,
				Right:  50,
				Bottom: 50,
			},
			FillColor: chart.ColorWhite,
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: float64(top)},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.0f", v.(float64))
			},
			Style: chart.Style{
				FontSize:  12,
				FontColor: chart.ColorBlack,
			},
		},
		Bars: bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render plan bar chart: %w", err)
	}
	return buffer.Bytes(), nil
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/TheSimpleMango/ImagineFace/internal/models"
	"github.com/TheSimpleMango/ImagineFace/internal/repository"
)

type ResultsHandler struct {
	log *zap.Logger
}

func NewResultsHandler(log *zap.Logger) *ResultsHandler {
	return &ResultsHandler{log: log}
}

type metricOption struct {
	Value string
	Label string
}

// availableMetrics fixes the dropdown order on the charts page.
var availableMetrics = []metricOption{
	{Value: models.MeasureFaceWidth, Label: "Face Width"},
	{Value: models.MeasureFaceHeight, Label: "Face Height"},
	{Value: models.MeasureInterEye, Label: "Inter-Eye Distance"},
	{Value: models.MeasureNoseEccentricity, Label: "Nose Eccentricity"},
	{Value: models.MeasureGazeOffset, Label: "Gaze Offset"},
}

// metricLabel resolves a metric key to its display label; ok is false
// for keys outside availableMetrics.
func metricLabel(key string) (string, bool) {
	for _, m := range availableMetrics {
		if m.Value == key {
			return m.Label, true
		}
	}
	return "", false
}

// ListParticipants returns the participants present in the analysis store.
func (h *ResultsHandler) ListParticipants(c *gin.Context) {
	participants, err := repository.GetParticipants(c)
	if err != nil {
		h.log.Error("Failed to list participants", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to load participants")
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

// GetMeasurements returns a participant's per-trial measurement rows.
func (h *ResultsHandler) GetMeasurements(c *gin.Context) {
	participant := c.Param("participant")
	rows, err := repository.GetMeasurements(c, participant)
	if err != nil {
		h.log.Error("Failed to get measurements", zap.Error(err), zap.String("participant", participant))
		c.String(http.StatusInternalServerError, "Failed to load measurements")
		return
	}
	c.JSON(http.StatusOK, gin.H{"participant": participant, "measurements": rows})
}

// GetSummaries returns a participant's aggregate rows.
func (h *ResultsHandler) GetSummaries(c *gin.Context) {
	participant := c.Param("participant")
	rows, err := repository.GetSummaries(c, participant)
	if err != nil {
		h.log.Error("Failed to get summaries", zap.Error(err), zap.String("participant", participant))
		c.String(http.StatusInternalServerError, "Failed to load summaries")
		return
	}
	c.JSON(http.StatusOK, gin.H{"participant": participant, "summaries": rows})
}

// ShowCharts renders the per-participant charts page: the selected
// metric across trials plus its correlation with gaze offset.
func (h *ResultsHandler) ShowCharts(c *gin.Context) {
	participant := c.Param("participant")
	metricKey := c.Query("metric")
	if metricKey == "" {
		metricKey = availableMetrics[0].Value
	}
	label, ok := metricLabel(metricKey)
	if !ok {
		c.String(http.StatusBadRequest, "Unknown metric")
		return
	}

	record, err := repository.GetSessionRecord(c, participant)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.String(http.StatusNotFound, "Unknown participant")
			return
		}
		h.log.Error("Failed to get session record", zap.Error(err), zap.String("participant", participant))
		c.String(http.StatusInternalServerError, "Failed to load session")
		return
	}

	timelineData, err := repository.GetTimelineData(c, participant, metricKey)
	if err != nil {
		h.log.Error("Failed to get timeline data", zap.Error(err),
			zap.String("participant", participant), zap.String("metricKey", metricKey))
		c.String(http.StatusInternalServerError, "Failed to load timeline data")
		return
	}

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("FaceTrace %s", participant)
	page.AddCharts(generateTimelineChart(timelineData, label, record))

	// Plotting gaze offset against itself says nothing; skip the scatter.
	if metricKey != models.MeasureGazeOffset && record.GazeAvailable {
		correlationData, err := repository.GetCorrelationData(c, participant, metricKey)
		if err != nil {
			h.log.Error("Failed to get correlation data", zap.Error(err),
				zap.String("participant", participant), zap.String("metricKey", metricKey))
			c.String(http.StatusInternalServerError, "Failed to load correlation data")
			return
		}
		page.AddCharts(generateCorrelationChart(correlationData, label))
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(c.Writer); err != nil {
		h.log.Error("Failed to render charts page", zap.Error(err))
	}
}

func generateTimelineChart(data []repository.TimelineDataPoint, label string, record *models.SessionRecord) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: "Metric Across Trials",
			Subtitle: fmt.Sprintf("%s on %dx%d @ %.2fm viewing distance",
				label, record.WidthPx, record.HeightPx, record.ViewingDistanceM),
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "category",
			Name: "Trial",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type:  "value",
			Name:  "Visual angle (deg)",
			Scale: opts.Bool(true),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	axis := make([]string, 0, len(data))
	items := make([]opts.LineData, 0, len(data))
	for _, point := range data {
		axis = append(axis, fmt.Sprintf("%d (%s)", point.TrialID, point.Identity))
		items = append(items, opts.LineData{Value: point.Deg})
	}

	line.SetXAxis(axis).
		AddSeries(label, items).
		SetSeriesOptions(charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))
	return line
}

func generateCorrelationChart(data []repository.CorrelationDataPoint, label string) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: "Metric vs. Gaze Offset",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "value",
			Name: label + " (deg)",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type: "value",
			Name: "gaze offset (deg)",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	items := make([]opts.ScatterData, 0, len(data))
	for _, point := range data {
		items = append(items, opts.ScatterData{Value: []interface{}{point.MetricDeg, point.GazeDeg}})
	}

	scatter.AddSeries("Trials", items)
	return scatter
}

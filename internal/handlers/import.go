package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TheSimpleMango/ImagineFace/internal/analysis"
	"github.com/TheSimpleMango/ImagineFace/internal/models"
	"github.com/TheSimpleMango/ImagineFace/internal/repository"
	"github.com/TheSimpleMango/ImagineFace/internal/store"
	"github.com/TheSimpleMango/ImagineFace/internal/trial"
)

// ImportHandler pulls raw session directories through the analysis
// pipeline and into the database, so the acquisition machine only ever
// needs to ship its data directory.
type ImportHandler struct {
	log     *zap.Logger
	dataDir string
}

func NewImportHandler(log *zap.Logger, dataDir string) *ImportHandler {
	return &ImportHandler{log: log, dataDir: dataDir}
}

// ImportParticipant analyzes one participant's raw data and replaces
// their rows in the analysis store.
func (h *ImportHandler) ImportParticipant(c *gin.Context) {
	participant := c.Param("participant")
	if err := h.importOne(c, participant); err != nil {
		h.log.Error("Failed to import participant", zap.Error(err), zap.String("participant", participant))
		c.String(http.StatusInternalServerError, "Failed to import participant")
		return
	}
	c.JSON(http.StatusOK, gin.H{"participant": participant, "imported": true})
}

// ImportAll walks the whole data directory. Participants that fail to
// import are reported but do not stop the rest.
func (h *ImportHandler) ImportAll(c *gin.Context) {
	participants, err := store.ListParticipants(h.dataDir)
	if err != nil {
		h.log.Error("Failed to list data directory", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to list data directory")
		return
	}

	imported := make([]string, 0, len(participants))
	failed := make([]string, 0)
	for _, p := range participants {
		if err := h.importOne(c, p); err != nil {
			h.log.Error("Failed to import participant", zap.Error(err), zap.String("participant", p))
			failed = append(failed, p)
			continue
		}
		imported = append(imported, p)
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported, "failed": failed})
}

func (h *ImportHandler) importOne(c *gin.Context, participant string) error {
	session, err := store.LoadParticipant(h.dataDir, participant)
	if err != nil {
		return err
	}
	res, err := analysis.AnalyzeSession(session)
	if err != nil {
		return err
	}
	manifest, err := trial.LoadManifest(h.dataDir, participant)
	if err != nil {
		return err
	}
	return repository.SaveResult(c, res, manifest, sessionLandmarks(session))
}

// sessionLandmarks is the set of landmark names seen anywhere in the
// session, in first-seen order.
func sessionLandmarks(session *models.ParticipantSession) []string {
	seen := map[string]bool{}
	var out []string
	for _, rec := range session.Trials {
		for _, lm := range rec.Landmarks {
			if seen[lm.Landmark] {
				continue
			}
			seen[lm.Landmark] = true
			out = append(out, lm.Landmark)
		}
	}
	return out
}

// internal/app/features/responses/export.go
package responses

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dalemusser/mindpath/internal/app/system/authz"
	"github.com/dalemusser/mindpath/internal/app/system/httpjson"
	"github.com/dalemusser/mindpath/internal/app/system/timeouts"
	"go.uber.org/zap"
)

const exportTimeLayout = "2006-01-02 15:04"

var exportHeader = []string{"nama", "kelompok", "jumlah_pengumpulan", "terakhir_dikumpulkan", "sudah_ditanggapi", "penanggap", "waktu_tanggapan"}

// ServeExport handles GET /export.csv: one row per participant describing
// their latest submission for the session.
func (h *Handler) ServeExport(w http.ResponseWriter, r *http.Request) {
	e, index := h.target(w, r)
	if e == nil {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "export")
	defer cancel()

	rows, err := e.ExportRows(ctx, index)
	if err != nil {
		httpjson.Error(w, h.Log, "export", err)
		return
	}

	filename := fmt.Sprintf("%s_sesi_%d_%s.csv", e.Kind(), index, time.Now().In(h.Loc).Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, url.PathEscape(filename)))

	// UTF-8 BOM for Excel
	_, _ = w.Write([]byte{0xEF, 0xBB, 0xBF})

	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	defer cw.Flush()

	_ = cw.Write(exportHeader)
	for _, row := range rows {
		responded := "tidak"
		if row.Responded {
			responded = "ya"
		}
		respondedAt := ""
		if row.RespondedAt != nil {
			respondedAt = row.RespondedAt.In(h.Loc).Format(exportTimeLayout)
		}
		_ = cw.Write([]string{
			row.Name,
			row.Group,
			strconv.Itoa(row.Submissions),
			row.LastSubmitted.In(h.Loc).Format(exportTimeLayout),
			responded,
			row.Responder,
			respondedAt,
		})
	}

	_, userName, _, _ := authz.UserCtx(r)
	h.Log.Info("submissions CSV exported",
		zap.String("program", e.Kind()),
		zap.Int("session", index),
		zap.String("user", userName),
		zap.Int("rows", len(rows)))
}

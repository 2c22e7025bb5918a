package responses_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/mindpath/internal/app/dispatchjobs"
	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/app/features/responses"
	"github.com/dalemusser/mindpath/internal/app/system/auth"
	"github.com/dalemusser/mindpath/internal/app/system/ratelimit"
	"github.com/dalemusser/mindpath/internal/app/views"
	"github.com/dalemusser/mindpath/internal/domain/models"
	"github.com/dalemusser/mindpath/internal/domain/programs"
	"github.com/dalemusser/mindpath/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const base = "/admin/programs/spiritual/sessions/2"

var wib = time.FixedZone("WIB", 7*3600)

type fixture struct {
	router    http.Handler
	h         *responses.Handler
	be        *testutil.MemBackend
	jobs      *dispatchjobs.Registry
	counselor testutil.TestUser
}

type seeded struct {
	id  primitive.ObjectID
	sub models.Submission
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	e, be := testutil.NewMemEngine(t, programs.KindSpiritual, engine.Options{})
	reg := views.New(engine.NewCatalog(e), zap.NewNop())
	t.Cleanup(reg.Close)
	jobs := dispatchjobs.New(zap.NewNop())
	t.Cleanup(jobs.Wait)

	sm, err := auth.NewSessionManager("test-session-key-must-be-32-chars-long", "test-session", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	h := responses.NewHandler(reg, jobs, wib, zap.NewNop())
	r := chi.NewRouter()
	r.Mount("/admin/programs/{program}/sessions/{index}", responses.Routes(h, sm))
	return &fixture{router: r, h: h, be: be, jobs: jobs, counselor: testutil.CounselorUser()}
}

func (f *fixture) seed(name, group string, numbers ...int) seeded {
	id := f.be.Participant("spiritual", name, group)
	var sub models.Submission
	for _, n := range numbers {
		sub = f.be.Submissions.Seed(models.Submission{
			UserID:           id,
			SessionIndex:     2,
			SubmissionNumber: n,
			Answers:          models.Answers{"refleksi": fmt.Sprintf("jawaban %d", n)},
			SubmittedAt:      time.Date(2026, 3, 1, 2, n, 0, 0, time.UTC),
		})
	}
	return seeded{id: id, sub: sub}
}

func (f *fixture) as(user testutil.TestUser, method, target, body string) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, testutil.NewJSONRequest(method, target, body, user))
	return rec
}

func (f *fixture) do(method, target, body string) *testutil.ResponseRecorder {
	return f.as(f.counselor, method, target, body)
}

func decode(t *testing.T, rec *testutil.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v (body %s)", err, rec.Body.String())
	}
}

func TestRoutes_RequireStaffRole(t *testing.T) {
	f := newFixture(t)
	f.as(testutil.MemberUser(), http.MethodGet, base+"/submissions", "").AssertStatus(t, http.StatusForbidden)
	f.as(testutil.AdminUser(), http.MethodGet, base+"/submissions", "").AssertStatus(t, http.StatusOK)
	f.do(http.MethodGet, "/admin/programs/astrology/sessions/2/submissions", "").AssertStatus(t, http.StatusNotFound)
	f.do(http.MethodGet, "/admin/programs/spiritual/sessions/12/submissions", "").AssertStatus(t, http.StatusNotFound)
}

func TestServeSubmissions(t *testing.T) {
	f := newFixture(t)
	f.seed("Ayu", "A", 1, 2)
	f.seed("Budi", "B", 1)

	rec := f.do(http.MethodGet, base+"/submissions", "")
	rec.AssertStatus(t, http.StatusOK)
	var body struct {
		Entries []engine.Entry `json:"entries"`
		Count   int            `json:"count"`
	}
	decode(t, rec, &body)
	if body.Count != 3 {
		t.Fatalf("count = %d, want 3", body.Count)
	}
	for _, en := range body.Entries {
		if en.Name == "" {
			t.Errorf("entry without participant name: %+v", en)
		}
	}
}

func TestHandleTargets(t *testing.T) {
	f := newFixture(t)
	f.seed("Ayu", "A", 1, 2)
	f.seed("Budi", "B", 1)
	f.seed("Citra", "B", 1, 2)

	rec := f.do(http.MethodPost, base+"/targets", `{"number":0,"cohort":"group","group":"B"}`)
	rec.AssertStatus(t, http.StatusOK)
	var body struct {
		Targets []engine.Entry `json:"targets"`
		Count   int            `json:"count"`
	}
	decode(t, rec, &body)
	if body.Count != 2 {
		t.Fatalf("count = %d, want 2", body.Count)
	}

	f.do(http.MethodPost, base+"/targets", `{"cohort":"group","group":"Z"}`).AssertStatus(t, http.StatusBadRequest)
	f.do(http.MethodPost, base+"/targets", `{"number":8}`).AssertStatus(t, http.StatusBadRequest)
}

func TestDispatch_JobRunsToCompletion(t *testing.T) {
	f := newFixture(t)
	ayu := f.seed("Ayu", "B", 1)
	budi := f.seed("Budi", "B", 1, 2)
	citra := f.seed("Citra", "B", 1)

	body := fmt.Sprintf(`{"cohort":"group","group":"B","text":"<p>Terima kasih</p>","deselected":[%q]}`, citra.id.Hex())
	rec := f.do(http.MethodPost, base+"/dispatch", body)
	rec.AssertStatus(t, http.StatusAccepted)
	var started struct {
		JobID string `json:"job_id"`
		Total int    `json:"total"`
	}
	decode(t, rec, &started)
	if started.JobID == "" || started.Total != 2 {
		t.Fatalf("started = %+v", started)
	}

	f.jobs.Wait()
	rec = f.do(http.MethodGet, base+"/dispatch/"+started.JobID, "")
	rec.AssertStatus(t, http.StatusOK)
	var job dispatchjobs.Job
	decode(t, rec, &job)
	if job.Status != dispatchjobs.StatusDone || job.Summary != "Berhasil: 2" || job.Current != 2 {
		t.Errorf("job = %+v", job)
	}

	ctx := context.Background()
	for _, s := range []seeded{ayu, budi} {
		got, _ := f.be.Submissions.Get(ctx, s.sub.ID)
		if !got.HasResponse() || *got.CounselorResponse != "Terima kasih" || got.Responder() != "Bu Sari" {
			t.Errorf("submission %s = %+v", s.sub.ID.Hex(), got)
		}
	}
	if got, _ := f.be.Submissions.Get(ctx, citra.sub.ID); got.HasResponse() {
		t.Error("deselected participant received a response")
	}

	// Job IDs are scoped to their session.
	f.do(http.MethodGet, "/admin/programs/spiritual/sessions/1/dispatch/"+started.JobID, "").AssertStatus(t, http.StatusNotFound)
	f.do(http.MethodGet, base+"/dispatch/nope", "").AssertStatus(t, http.StatusNotFound)
}

func TestDispatch_Rejections(t *testing.T) {
	f := newFixture(t)
	ayu := f.seed("Ayu", "A", 1)

	f.do(http.MethodPost, base+"/dispatch", `{"text":"  <br> "}`).AssertStatus(t, http.StatusBadRequest)
	f.do(http.MethodPost, base+"/dispatch", fmt.Sprintf(`{"text":"Halo","deselected":[%q]}`, ayu.id.Hex())).AssertStatus(t, http.StatusBadRequest)
	f.do(http.MethodPost, base+"/dispatch", `{"text":"Halo","deselected":["xyz"]}`).AssertStatus(t, http.StatusBadRequest)
	f.do(http.MethodPost, base+"/dispatch", `{"text":"Halo","cohort":"cohort-x"}`).AssertStatus(t, http.StatusBadRequest)
}

func TestDispatch_RateLimitedPerCounselor(t *testing.T) {
	f := newFixture(t)
	f.h.DispatchLimit = ratelimit.New(1, 1)

	f.do(http.MethodPost, base+"/dispatch", `{"text":""}`).AssertStatus(t, http.StatusBadRequest)
	f.do(http.MethodPost, base+"/dispatch", `{"text":""}`).AssertStatus(t, http.StatusTooManyRequests)
	f.as(testutil.AdminUser(), http.MethodPost, base+"/dispatch", `{"text":""}`).AssertStatus(t, http.StatusBadRequest)
}

func TestHandleRespond(t *testing.T) {
	f := newFixture(t)
	ayu := f.seed("Ayu", "A", 1)
	target := base + "/submissions/" + ayu.sub.ID.Hex() + "/response"

	rec := f.do(http.MethodPost, target, `{"text":"Bagus sekali"}`)
	rec.AssertStatus(t, http.StatusOK)
	var sub models.Submission
	decode(t, rec, &sub)
	if sub.Responder() != "Bu Sari" || sub.RespondedAt == nil {
		t.Errorf("submission = %+v", sub)
	}

	// Same responder may revise; another may not.
	f.do(http.MethodPost, target, `{"text":"Bagus sekali, lanjutkan"}`).AssertStatus(t, http.StatusOK)
	f.as(testutil.AdminUser(), http.MethodPost, target, `{"text":"Lain"}`).AssertStatus(t, http.StatusConflict)

	f.do(http.MethodPost, target, `{"text":""}`).AssertStatus(t, http.StatusBadRequest)
	f.do(http.MethodPost, base+"/submissions/"+primitive.NewObjectID().Hex()+"/response", `{"text":"x"}`).AssertStatus(t, http.StatusNotFound)
}

func TestHandleRespond_ProgressMirrorFailure(t *testing.T) {
	f := newFixture(t)
	ayu := f.seed("Ayu", "A", 1)
	f.be.Progress.Fail("upsert", errors.New("timeout"))

	rec := f.do(http.MethodPost, base+"/submissions/"+ayu.sub.ID.Hex()+"/response", `{"text":"Bagus"}`)
	rec.AssertStatus(t, http.StatusOK)
	var body struct {
		models.Submission
		Warning string `json:"warning"`
	}
	decode(t, rec, &body)
	if body.Warning != "progress_not_saved" || body.Responder() != "Bu Sari" {
		t.Errorf("body = %+v", body)
	}
	if got, _ := f.be.Submissions.Get(context.Background(), ayu.sub.ID); !got.HasResponse() {
		t.Error("response not stored")
	}
}

func TestDispatch_ProgressMirrorFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	ayu := f.seed("Ayu", "B", 1)
	f.be.Progress.Fail("upsert", errors.New("timeout"))

	rec := f.do(http.MethodPost, base+"/dispatch", `{"cohort":"group","group":"B","text":"Terima kasih"}`)
	rec.AssertStatus(t, http.StatusAccepted)
	var started struct {
		JobID string `json:"job_id"`
	}
	decode(t, rec, &started)

	f.jobs.Wait()
	job, ok := f.jobs.Get(started.JobID)
	if !ok || job.Result == nil {
		t.Fatalf("job = %+v", job)
	}
	if job.Summary != "Berhasil: 1" || len(job.Result.Failed) != 0 {
		t.Errorf("summary = %q, failed = %+v", job.Summary, job.Result.Failed)
	}
	if len(job.Result.MirrorFailed) != 1 || job.Result.MirrorFailed[0] != ayu.id {
		t.Errorf("mirror_failed = %v", job.Result.MirrorFailed)
	}
}

func TestDispatch_RefusedWhenTargetsChangedSincePreview(t *testing.T) {
	f := newFixture(t)
	ayu := f.seed("Ayu", "B", 1)
	f.seed("Budi", "B", 1)

	rec := f.do(http.MethodPost, base+"/targets", `{"cohort":"group","group":"B"}`)
	rec.AssertStatus(t, http.StatusOK)
	var preview struct {
		Targets []engine.Entry `json:"targets"`
	}
	decode(t, rec, &preview)
	ids := make([]string, 0, len(preview.Targets))
	for _, tg := range preview.Targets {
		ids = append(ids, tg.Submission.ID.Hex())
	}
	expected, _ := json.Marshal(ids)
	body := `{"cohort":"group","group":"B","text":"Terima kasih","expected":` + string(expected) + `}`

	// Ayu submits again between the preview and the confirm.
	newer := f.be.Submissions.Seed(models.Submission{
		UserID:           ayu.id,
		SessionIndex:     2,
		SubmissionNumber: 2,
		SubmittedAt:      time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC),
	})

	f.do(http.MethodPost, base+"/dispatch", body).AssertStatus(t, http.StatusConflict)
	f.jobs.Wait()
	ctx := context.Background()
	for _, id := range []primitive.ObjectID{ayu.sub.ID, newer.ID} {
		if got, _ := f.be.Submissions.Get(ctx, id); got.HasResponse() {
			t.Errorf("submission %s answered despite refused dispatch", id.Hex())
		}
	}

	f.do(http.MethodPost, base+"/dispatch", `{"text":"Halo","expected":["xyz"]}`).AssertStatus(t, http.StatusBadRequest)

	// A fresh preview matches and goes through.
	rec = f.do(http.MethodPost, base+"/targets", `{"cohort":"group","group":"B"}`)
	decode(t, rec, &preview)
	ids = ids[:0]
	for _, tg := range preview.Targets {
		ids = append(ids, tg.Submission.ID.Hex())
	}
	expected, _ = json.Marshal(ids)
	body = `{"cohort":"group","group":"B","text":"Terima kasih","expected":` + string(expected) + `}`
	f.do(http.MethodPost, base+"/dispatch", body).AssertStatus(t, http.StatusAccepted)
	f.jobs.Wait()
	if got, _ := f.be.Submissions.Get(ctx, newer.ID); !got.HasResponse() {
		t.Error("confirmed dispatch did not answer the newest submission")
	}
}

func TestHandleDelete(t *testing.T) {
	f := newFixture(t)
	ayu := f.seed("Ayu", "A", 1)
	budi := f.seed("Budi", "A", 1, 2)
	ids := fmt.Sprintf(`[%q,%q,"bogus"]`, ayu.sub.ID.Hex(), budi.sub.ID.Hex())

	f.do(http.MethodPost, base+"/submissions/delete", `{"ids":`+ids+`}`).AssertStatus(t, http.StatusBadRequest)

	rec := f.do(http.MethodPost, base+"/submissions/delete", `{"ids":`+ids+`,"confirm":true}`)
	rec.AssertStatus(t, http.StatusOK)
	var body struct {
		Deleted []primitive.ObjectID `json:"deleted"`
		Cleared []primitive.ObjectID `json:"cleared"`
		Invalid []string             `json:"invalid"`
	}
	decode(t, rec, &body)
	if len(body.Deleted) != 2 || len(body.Invalid) != 1 {
		t.Fatalf("body = %+v", body)
	}
	// Budi still has submission 1, so only Ayu's progress is cleared.
	if len(body.Cleared) != 1 || body.Cleared[0] != ayu.id {
		t.Errorf("cleared = %v, want [%s]", body.Cleared, ayu.id.Hex())
	}
}

func TestServeExport(t *testing.T) {
	f := newFixture(t)
	ayu := f.seed("Ayu", "A", 1, 2)
	f.seed("Budi", "", 1)
	f.do(http.MethodPost, base+"/submissions/"+ayu.sub.ID.Hex()+"/response", `{"text":"Baik"}`).AssertStatus(t, http.StatusOK)

	rec := f.do(http.MethodGet, base+"/export.csv", "")
	rec.AssertStatus(t, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	raw := rec.Body.Bytes()
	if !bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatal("missing UTF-8 BOM")
	}
	if !bytes.Contains(raw, []byte("\r\n")) {
		t.Error("rows should end with CRLF")
	}

	records, err := csv.NewReader(bytes.NewReader(raw[3:])).ReadAll()
	if err != nil {
		t.Fatalf("parse CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2", len(records))
	}
	var ayuRow []string
	for _, rec := range records[1:] {
		if rec[0] == "Ayu" {
			ayuRow = rec
		}
	}
	if ayuRow == nil {
		t.Fatalf("no row for Ayu in %v", records)
	}
	// Submission 2 was at 02:02 UTC, 09:02 in WIB.
	if ayuRow[2] != "2" || ayuRow[3] != "2026-03-01 09:02" || ayuRow[4] != "ya" || ayuRow[5] != "Bu Sari" {
		t.Errorf("Ayu row = %v", ayuRow)
	}
}

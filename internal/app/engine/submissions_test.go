package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/domain/models"
	"github.com/dalemusser/mindpath/internal/domain/programs"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestAppend_NumbersIncrease(t *testing.T) {
	e, _ := newEngine(t, programs.KindNarrativeCBT, engine.Options{})
	ctx := context.Background()
	id := primitive.NewObjectID()

	for want := 1; want <= 3; want++ {
		sub, err := e.Append(ctx, id, 2, models.Answers{"situasi": "stres ujian"})
		if err != nil {
			t.Fatalf("Append err = %v", err)
		}
		if sub.SubmissionNumber != want {
			t.Errorf("number = %d, want %d", sub.SubmissionNumber, want)
		}
	}

	other, err := e.Append(ctx, id, 3, models.Answers{})
	if err != nil {
		t.Fatalf("Append err = %v", err)
	}
	if other.SubmissionNumber != 1 {
		t.Errorf("other session number = %d, want 1", other.SubmissionNumber)
	}
}

func TestAppend_ConcurrentAppendsGetDistinctNumbers(t *testing.T) {
	e, be := newEngine(t, programs.KindNarrativeCBT, engine.Options{})
	id := primitive.NewObjectID()

	// Hold the first two inserts until both have read the same maximum.
	var arrived sync.WaitGroup
	arrived.Add(2)
	var calls atomic.Int32
	be.Submissions.BeforeInsert = func() {
		if calls.Add(1) <= 2 {
			arrived.Done()
			arrived.Wait()
		}
	}

	var wg sync.WaitGroup
	nums := make([]int, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub, err := e.Append(context.Background(), id, 1, models.Answers{"cerita_utama": "x"})
			nums[i], errs[i] = sub.SubmissionNumber, err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("Append err = %v", err)
		}
	}
	if nums[0] == nums[1] {
		t.Fatalf("both appends got number %d", nums[0])
	}
	if nums[0]+nums[1] != 3 {
		t.Errorf("numbers = %v, want 1 and 2", nums)
	}
}

func TestAppend_InsertFailure(t *testing.T) {
	e, be := newEngine(t, programs.KindNarrativeCBT, engine.Options{})
	be.Submissions.Fail("insert", errors.New("write concern"))

	_, err := e.Append(context.Background(), primitive.NewObjectID(), 1, models.Answers{})
	if !errors.Is(err, engine.ErrPersistence) {
		t.Errorf("err = %v, want persistence error", err)
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	e, be := newEngine(t, programs.KindNarrativeCBT, engine.Options{})
	id := primitive.NewObjectID()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	be.Submissions.Seed(models.Submission{UserID: id, SessionIndex: 1, SubmissionNumber: 1, SubmittedAt: base})
	be.Submissions.Seed(models.Submission{UserID: id, SessionIndex: 1, SubmissionNumber: 3, SubmittedAt: base.Add(time.Hour)})
	be.Submissions.Seed(models.Submission{UserID: id, SessionIndex: 1, SubmissionNumber: 2, SubmittedAt: base.Add(time.Hour)})

	hist, err := e.History(context.Background(), id, 1)
	if err != nil {
		t.Fatalf("History err = %v", err)
	}
	got := []int{hist[0].SubmissionNumber, hist[1].SubmissionNumber, hist[2].SubmissionNumber}
	want := []int{3, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestSetCounselorResponse_MirrorsLatestOnly(t *testing.T) {
	e, be := newEngine(t, programs.KindSpiritual, engine.Options{})
	ctx := context.Background()
	id := primitive.NewObjectID()

	first := be.Submissions.Seed(models.Submission{UserID: id, SessionIndex: 1, SubmissionNumber: 1})
	second := be.Submissions.Seed(models.Submission{UserID: id, SessionIndex: 1, SubmissionNumber: 2})

	if _, err := e.SetCounselorResponse(ctx, first.ID, "Lama", "Bu Sari"); err != nil {
		t.Fatalf("respond to older err = %v", err)
	}
	p, _ := e.Progress(ctx, id, 1)
	if p.HasResponse() {
		t.Error("response to an older submission must not be mirrored")
	}

	sub, err := e.SetCounselorResponse(ctx, second.ID, "Baru", "Bu Sari")
	if err != nil {
		t.Fatalf("respond to latest err = %v", err)
	}
	if sub.RespondedAt == nil {
		t.Error("responded_at not set")
	}
	p, _ = e.Progress(ctx, id, 1)
	if !p.HasResponse() || *p.CounselorResponse != "Baru" || !p.AssignmentDone || p.RespondedAt == nil {
		t.Errorf("mirrored progress = %+v", p)
	}

	if _, err := e.SetCounselorResponse(ctx, primitive.NewObjectID(), "x", "y"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing submission err = %v, want ErrNotFound", err)
	}
}

func TestRespondToSubmission_Rules(t *testing.T) {
	e, be := newEngine(t, programs.KindSpiritual, engine.Options{})
	ctx := context.Background()
	id := primitive.NewObjectID()
	sub := be.Submissions.Seed(models.Submission{UserID: id, SessionIndex: 2, SubmissionNumber: 1})

	sari := counselor("Bu Sari")
	if _, err := e.RespondToSubmission(ctx, participant(id, "Ayu"), sub.ID, "hi"); !errors.Is(err, engine.ErrNotPrivileged) {
		t.Errorf("participant err = %v", err)
	}
	if _, err := e.RespondToSubmission(ctx, sari, sub.ID, "   "); !errors.Is(err, engine.ErrEmptyResponse) {
		t.Errorf("blank err = %v", err)
	}
	if _, err := e.RespondToSubmission(ctx, sari, sub.ID, " Terima kasih "); err != nil {
		t.Fatalf("first response err = %v", err)
	}
	if _, err := e.RespondToSubmission(ctx, sari, sub.ID, "Terima kasih banyak"); err != nil {
		t.Errorf("same responder overwrite err = %v", err)
	}
	if _, err := e.RespondToSubmission(ctx, counselor("Pak Dodi"), sub.ID, "Halo"); !errors.Is(err, engine.ErrResponderMismatch) {
		t.Errorf("other responder err = %v", err)
	}

	got, _ := be.Submissions.Get(ctx, sub.ID)
	if *got.CounselorResponse != "Terima kasih banyak" || got.Responder() != "Bu Sari" {
		t.Errorf("stored = %q by %q", *got.CounselorResponse, got.Responder())
	}
}

func TestRespondToSubmission_NotifiesChange(t *testing.T) {
	var mu sync.Mutex
	var changes []int
	e, be := newEngine(t, programs.KindSpiritual, engine.Options{
		OnChange: func(program string, session int) {
			mu.Lock()
			changes = append(changes, session)
			mu.Unlock()
		},
	})
	sub := be.Submissions.Seed(models.Submission{UserID: primitive.NewObjectID(), SessionIndex: 4, SubmissionNumber: 1})
	if _, err := e.RespondToSubmission(context.Background(), counselor("Bu Sari"), sub.ID, "ok"); err != nil {
		t.Fatalf("err = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 || changes[0] != 4 {
		t.Errorf("changes = %v, want [4]", changes)
	}
}

func TestRespondToSubmission_MirrorFailureKeepsResponse(t *testing.T) {
	var changes int
	e, be := newEngine(t, programs.KindSpiritual, engine.Options{
		OnChange: func(string, int) { changes++ },
	})
	ctx := context.Background()
	id := primitive.NewObjectID()
	sub := be.Submissions.Seed(models.Submission{UserID: id, SessionIndex: 2, SubmissionNumber: 1})
	be.Progress.Fail("upsert", errors.New("timeout"))

	saved, err := e.RespondToSubmission(ctx, counselor("Bu Sari"), sub.ID, "Terima kasih")
	if !errors.Is(err, engine.ErrMirrorFailed) || !errors.Is(err, engine.ErrPersistence) {
		t.Fatalf("err = %v, want ErrMirrorFailed", err)
	}
	if saved.ID != sub.ID || !saved.HasResponse() {
		t.Errorf("returned submission = %+v", saved)
	}
	stored, _ := be.Submissions.Get(ctx, sub.ID)
	if !stored.HasResponse() {
		t.Error("response not stored")
	}
	if changes != 1 {
		t.Errorf("changes = %d, want 1", changes)
	}

	be.Progress.Fail("upsert", nil)
	if _, err := e.RespondToSubmission(ctx, counselor("Bu Sari"), sub.ID, "Terima kasih lagi"); err != nil {
		t.Fatalf("retry err = %v", err)
	}
	if p, _ := e.Progress(ctx, id, 2); !p.HasResponse() {
		t.Error("retry did not mirror the response")
	}
}

func TestDeleteSubmissions_Cascade(t *testing.T) {
	e, be := newEngine(t, programs.KindSpiritual, engine.Options{})
	ctx := context.Background()
	admin := engine.Actor{UserID: primitive.NewObjectID(), Name: "Admin", Role: models.RoleAdmin}

	only := primitive.NewObjectID()
	pair := primitive.NewObjectID()

	onlySub := be.Submissions.Seed(models.Submission{UserID: only, SessionIndex: 1, SubmissionNumber: 1})
	pairOld := be.Submissions.Seed(models.Submission{UserID: pair, SessionIndex: 1, SubmissionNumber: 1})
	be.Submissions.Seed(models.Submission{UserID: pair, SessionIndex: 1, SubmissionNumber: 2})

	for _, uid := range []primitive.ObjectID{only, pair} {
		p := completed(uid, 1)
		p.CounselorResponse, p.CounselorName = strPtr("Bagus"), strPtr("Bu Sari")
		now := time.Now().UTC()
		p.RespondedAt = &now
		be.Progress.Seed(p)
	}

	missing := primitive.NewObjectID()
	res, err := e.DeleteSubmissions(ctx, admin, []primitive.ObjectID{onlySub.ID, missing, pairOld.ID, onlySub.ID}, true)
	if err != nil {
		t.Fatalf("DeleteSubmissions err = %v", err)
	}
	if len(res.Deleted) != 2 {
		t.Errorf("deleted = %v, want 2 ids", res.Deleted)
	}
	if len(res.Failed) != 1 || res.Failed[0].ID != missing || !errors.Is(res.Failed[0].Err, models.ErrNotFound) {
		t.Errorf("failed = %+v", res.Failed)
	}
	if len(res.Cleared) != 1 || res.Cleared[0] != only {
		t.Errorf("cleared = %v, want [%s]", res.Cleared, only.Hex())
	}

	p, _ := e.Progress(ctx, only, 1)
	if p.CounselorResponse != nil || p.CounselorName != nil || p.RespondedAt != nil {
		t.Errorf("last submission removed but response kept: %+v", p)
	}
	p, _ = e.Progress(ctx, pair, 1)
	if !p.HasResponse() {
		t.Error("progress touched although a submission remains")
	}
}

func TestDeleteSubmissions_Guards(t *testing.T) {
	e, be := newEngine(t, programs.KindSpiritual, engine.Options{})
	ctx := context.Background()
	sub := be.Submissions.Seed(models.Submission{UserID: primitive.NewObjectID(), SessionIndex: 1, SubmissionNumber: 1})
	ids := []primitive.ObjectID{sub.ID}

	if _, err := e.DeleteSubmissions(ctx, participant(primitive.NewObjectID(), "Ayu"), ids, true); !errors.Is(err, engine.ErrNotPrivileged) {
		t.Errorf("participant err = %v", err)
	}
	if _, err := e.DeleteSubmissions(ctx, counselor("Bu Sari"), ids, false); !errors.Is(err, engine.ErrConfirmRequired) {
		t.Errorf("unconfirmed err = %v", err)
	}
	if n, _ := be.Submissions.Count(ctx, sub.UserID, 1); n != 1 {
		t.Error("guarded delete removed data")
	}
}

func TestDeleteSubmissions_CascadeFailureReported(t *testing.T) {
	e, be := newEngine(t, programs.KindSpiritual, engine.Options{})
	ctx := context.Background()
	sub := be.Submissions.Seed(models.Submission{UserID: primitive.NewObjectID(), SessionIndex: 1, SubmissionNumber: 1})
	be.Progress.Fail("upsert", errors.New("primary stepped down"))

	res, err := e.DeleteSubmissions(ctx, counselor("Bu Sari"), []primitive.ObjectID{sub.ID}, true)
	if !errors.Is(err, engine.ErrPersistence) {
		t.Fatalf("err = %v, want persistence error", err)
	}
	if len(res.Deleted) != 1 || len(res.Cleared) != 0 {
		t.Errorf("result = %+v", res)
	}
}

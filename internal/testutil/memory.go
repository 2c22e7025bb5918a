package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/mindpath/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemBackend is an in-memory stand-in for one program's Mongo and Redis
// stores. Each repository counts its writes and can be told to fail.
type MemBackend struct {
	Progress    *MemProgress
	Submissions *MemSubmissions
	Enrollments *MemEnrollments
	Profiles    *MemProfiles
	Drafts      *MemDrafts
}

// NewMemBackend returns empty repositories for program.
func NewMemBackend(program string) *MemBackend {
	return &MemBackend{
		Progress:    &MemProgress{program: program, recs: map[progressKey]models.Progress{}},
		Submissions: &MemSubmissions{program: program, subs: map[primitive.ObjectID]models.Submission{}},
		Enrollments: &MemEnrollments{recs: map[enrollKey]models.Enrollment{}},
		Profiles:    &MemProfiles{names: map[primitive.ObjectID]string{}},
		Drafts:      &MemDrafts{data: map[string]models.Answers{}},
	}
}

// Participant enrolls a named user (group "" for none) and returns its ID.
func (b *MemBackend) Participant(program, name, group string) primitive.ObjectID {
	id := primitive.NewObjectID()
	b.Profiles.Set(id, name)
	b.Enrollments.Enroll(id, program, group)
	return id
}

// faults maps an operation name to the error it should return.
type faults struct {
	mu   sync.Mutex
	errs map[string]error
}

// Fail makes op return err until cleared with a nil err.
func (f *faults) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = map[string]error{}
	}
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

func (f *faults) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[op]
}

type progressKey struct {
	user    primitive.ObjectID
	session int
}

// MemProgress implements the progress repository.
type MemProgress struct {
	faults
	mu      sync.Mutex
	program string
	recs    map[progressKey]models.Progress
	writes  int
}

func (m *MemProgress) Get(ctx context.Context, userID primitive.ObjectID, session int) (*models.Progress, error) {
	if err := m.check("get"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.recs[progressKey{userID, session}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemProgress) Upsert(ctx context.Context, userID primitive.ObjectID, session int, patch models.ProgressPatch) error {
	if err := m.check("upsert"); err != nil {
		return err
	}
	if patch.IsEmpty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := progressKey{userID, session}
	now := time.Now().UTC()
	p, ok := m.recs[k]
	if !ok {
		p = models.Progress{
			ID:           primitive.NewObjectID(),
			UserID:       userID,
			Program:      m.program,
			SessionIndex: session,
			CreatedAt:    now,
		}
	}
	p = patch.Apply(p)
	p.UpdatedAt = now
	m.recs[k] = p
	m.writes++
	return nil
}

func (m *MemProgress) ListBySession(ctx context.Context, session int) ([]models.Progress, error) {
	if err := m.check("list"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Progress{}
	for k, p := range m.recs {
		if k.session == session {
			out = append(out, p)
		}
	}
	return out, nil
}

// Writes is the number of Upsert calls that changed state.
func (m *MemProgress) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Seed stores p directly, bypassing counters.
func (m *MemProgress) Seed(p models.Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Program = m.program
	m.recs[progressKey{p.UserID, p.SessionIndex}] = p
}

// MemSubmissions implements the submission repository.
type MemSubmissions struct {
	faults
	mu      sync.Mutex
	program string
	subs    map[primitive.ObjectID]models.Submission
	inserts int

	// FailResponseFor makes SetResponse fail for specific submissions.
	FailResponseFor map[primitive.ObjectID]error
	// BeforeInsert, when set, runs before each insert outside the lock.
	BeforeInsert func()
}

func (m *MemSubmissions) ListBySession(ctx context.Context, session int) ([]models.Submission, error) {
	if err := m.check("list"); err != nil {
		return nil, err
	}
	return m.filter(func(s models.Submission) bool { return s.SessionIndex == session }), nil
}

func (m *MemSubmissions) ListByUser(ctx context.Context, userID primitive.ObjectID, session int) ([]models.Submission, error) {
	if err := m.check("list"); err != nil {
		return nil, err
	}
	return m.filter(func(s models.Submission) bool {
		return s.UserID == userID && s.SessionIndex == session
	}), nil
}

func (m *MemSubmissions) filter(keep func(models.Submission) bool) []models.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Submission{}
	for _, s := range m.subs {
		if keep(s) {
			s.Answers = s.Answers.Clone()
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NewerThan(out[j]) })
	return out
}

func (m *MemSubmissions) MaxNumber(ctx context.Context, userID primitive.ObjectID, session int) (int, error) {
	if err := m.check("max"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		if s.UserID == userID && s.SessionIndex == session && s.SubmissionNumber > n {
			n = s.SubmissionNumber
		}
	}
	return n, nil
}

func (m *MemSubmissions) Insert(ctx context.Context, sub models.Submission) (models.Submission, error) {
	if m.BeforeInsert != nil {
		m.BeforeInsert()
	}
	if err := m.check("insert"); err != nil {
		return models.Submission{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.UserID == sub.UserID && s.SessionIndex == sub.SessionIndex && s.SubmissionNumber == sub.SubmissionNumber {
			return models.Submission{}, models.ErrNumberTaken
		}
	}
	if sub.ID.IsZero() {
		sub.ID = primitive.NewObjectID()
	}
	sub.Program = m.program
	sub.Answers = sub.Answers.Clone()
	m.subs[sub.ID] = sub
	m.inserts++
	return sub, nil
}

func (m *MemSubmissions) Get(ctx context.Context, id primitive.ObjectID) (models.Submission, error) {
	if err := m.check("get"); err != nil {
		return models.Submission{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return models.Submission{}, models.ErrNotFound
	}
	return s, nil
}

func (m *MemSubmissions) SetResponse(ctx context.Context, id primitive.ObjectID, text, responder string, at time.Time) error {
	if err := m.check("set_response"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailResponseFor[id]; err != nil {
		return err
	}
	s, ok := m.subs[id]
	if !ok {
		return models.ErrNotFound
	}
	at = at.UTC()
	s.CounselorResponse = &text
	s.CounselorName = &responder
	s.RespondedAt = &at
	m.subs[id] = s
	return nil
}

func (m *MemSubmissions) Delete(ctx context.Context, id primitive.ObjectID) (models.Submission, error) {
	if err := m.check("delete"); err != nil {
		return models.Submission{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return models.Submission{}, models.ErrNotFound
	}
	delete(m.subs, id)
	return s, nil
}

func (m *MemSubmissions) Count(ctx context.Context, userID primitive.ObjectID, session int) (int64, error) {
	if err := m.check("count"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.subs {
		if s.UserID == userID && s.SessionIndex == session {
			n++
		}
	}
	return n, nil
}

// Inserts is the number of successful inserts.
func (m *MemSubmissions) Inserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}

// Seed stores sub directly, bypassing numbering checks and counters.
func (m *MemSubmissions) Seed(sub models.Submission) models.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.ID.IsZero() {
		sub.ID = primitive.NewObjectID()
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}
	sub.Program = m.program
	m.subs[sub.ID] = sub
	return sub
}

type enrollKey struct {
	user    primitive.ObjectID
	program string
}

// MemEnrollments implements the enrollment repository.
type MemEnrollments struct {
	faults
	mu   sync.Mutex
	recs map[enrollKey]models.Enrollment
}

// Enroll adds or replaces an enrollment (group "" for none).
func (m *MemEnrollments) Enroll(userID primitive.ObjectID, program, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := models.Enrollment{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Program:   program,
		CreatedAt: time.Now().UTC(),
	}
	if group != "" {
		e.Group = &group
	}
	m.recs[enrollKey{userID, program}] = e
}

func (m *MemEnrollments) Get(ctx context.Context, userID primitive.ObjectID, program string) (*models.Enrollment, error) {
	if err := m.check("get"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.recs[enrollKey{userID, program}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MemEnrollments) ListByProgram(ctx context.Context, program string) ([]models.Enrollment, error) {
	if err := m.check("list"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Enrollment{}
	for k, e := range m.recs {
		if k.program == program {
			out = append(out, e)
		}
	}
	return out, nil
}

// MemProfiles implements the profile repository.
type MemProfiles struct {
	faults
	mu    sync.Mutex
	names map[primitive.ObjectID]string
}

// Set records a display name.
func (m *MemProfiles) Set(id primitive.ObjectID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[id] = name
}

func (m *MemProfiles) ListProfiles(ctx context.Context, ids []primitive.ObjectID) ([]models.Profile, error) {
	if err := m.check("list"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Profile{}
	for _, id := range ids {
		if n, ok := m.names[id]; ok {
			out = append(out, models.Profile{ID: id, DisplayName: n})
		}
	}
	return out, nil
}

// MemDrafts implements the draft repository.
type MemDrafts struct {
	faults
	mu      sync.Mutex
	data    map[string]models.Answers
	saves   int
	deletes int

	// BeforeSave, when set, runs before each save outside the lock.
	BeforeSave func(key string)
}

func (m *MemDrafts) Save(ctx context.Context, key string, answers models.Answers) error {
	if m.BeforeSave != nil {
		m.BeforeSave(key)
	}
	if err := m.check("save"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = answers.Clone()
	m.saves++
	return nil
}

func (m *MemDrafts) Load(ctx context.Context, key string) (models.Answers, bool, error) {
	if err := m.check("load"); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return a.Clone(), true, nil
}

func (m *MemDrafts) Delete(ctx context.Context, key string) error {
	if err := m.check("delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.deletes++
	return nil
}

// Saves is the number of successful saves.
func (m *MemDrafts) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Stored returns the current draft under key.
func (m *MemDrafts) Stored(key string) (models.Answers, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.data[key]
	return a.Clone(), ok
}

package jobs

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"missionctl/internal/storage"
	logx "missionctl/pkg/logx"
)

// Store is the typed job store over one storage collection.
type Store struct {
	st         storage.Store
	collection string
	log        logx.Logger

	validate func(expr string) error
	now      func() time.Time
}

func NewStore(st storage.Store, collection string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{st: st, collection: collection, log: log, now: time.Now}
}

// SetScheduleValidator makes CreateJob/UpdateJob reject schedules fn refuses.
func (s *Store) SetScheduleValidator(fn func(expr string) error) { s.validate = fn }

func (s *Store) Collection() string { return s.collection }

func decodeRecord(doc storage.Document) (Record, error) {
	var r Record
	if err := json.Unmarshal(doc.Body, &r); err != nil {
		return Record{}, errors.Wrapf(err, "decode job %s", doc.ID)
	}
	r.ID = doc.ID
	return r, nil
}

func encodeRecord(r Record) (json.RawMessage, error) {
	m := map[string]any{
		"id":       r.ID,
		"name":     r.Name,
		"schedule": r.Schedule,
		"status":   string(r.Status),
	}
	for k, t := range map[string]*time.Time{
		"next_run":   r.NextRun,
		"last_run":   r.LastRun,
		"created_at": r.CreatedAt,
		"updated_at": r.UpdatedAt,
	} {
		if t != nil {
			m[k] = FormatTime(*t)
		}
	}
	if r.LastResult != "" {
		m["last_result"] = string(r.LastResult)
	}
	if r.LastDuration != nil {
		m["last_duration"] = *r.LastDuration
	}
	if r.LastError != "" {
		m["last_error"] = r.LastError
	}
	b, err := json.Marshal(m)
	return b, errors.Wrap(err, "encode job")
}

// ListJobs returns every decodable job; malformed documents are logged and skipped.
func (s *Store) ListJobs(ctx context.Context) ([]Record, error) {
	docs, err := s.st.List(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		r, err := decodeRecord(d)
		if err != nil {
			s.log.Warn("skipping malformed job", logx.String("id", d.ID), logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (Record, bool, error) {
	doc, err := s.st.Get(ctx, s.collection, id)
	if errors.Is(err, storage.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	r, err := decodeRecord(doc)
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

// PatchJob applies run bookkeeping. An absent id is a no-op (false, nil).
func (s *Store) PatchJob(ctx context.Context, id string, p Patch) (Record, bool, error) {
	doc, err := s.st.Patch(ctx, s.collection, id, p.Fields())
	if errors.Is(err, storage.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	r, err := decodeRecord(doc)
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

func (s *Store) checkSchedule(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return errors.Wrap(ErrInvalidJob, "schedule is required")
	}
	if s.validate != nil {
		if err := s.validate(expr); err != nil {
			return errors.Mark(errors.Wrap(err, "schedule"), ErrInvalidJob)
		}
	}
	return nil
}

func (s *Store) CreateJob(ctx context.Context, in NewJob) (Record, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Record{}, errors.Wrap(ErrInvalidJob, "name is required")
	}
	expr := strings.TrimSpace(in.Schedule)
	if err := s.checkSchedule(expr); err != nil {
		return Record{}, err
	}
	status := StatusActive
	if in.Status != "" {
		st, err := ParseStatus(string(in.Status))
		if err != nil {
			return Record{}, err
		}
		status = st
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	} else if _, ok, err := s.GetJob(ctx, id); err != nil {
		return Record{}, err
	} else if ok {
		return Record{}, errors.Wrapf(ErrInvalidJob, "job %s already exists", id)
	}

	now := s.now()
	r := Record{
		ID:        id,
		Name:      name,
		Schedule:  expr,
		Status:    status,
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	body, err := encodeRecord(r)
	if err != nil {
		return Record{}, err
	}
	if err := s.st.Put(ctx, s.collection, storage.Document{ID: id, Body: body}); err != nil {
		return Record{}, err
	}
	return r, nil
}

// UpdateJob edits the definition fields. Returns (false, nil) when id is absent.
func (s *Store) UpdateJob(ctx context.Context, id string, u Update) (Record, bool, error) {
	fields := map[string]any{}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return Record{}, false, errors.Wrap(ErrInvalidJob, "name is required")
		}
		fields["name"] = name
	}
	if u.Schedule != nil {
		expr := strings.TrimSpace(*u.Schedule)
		if err := s.checkSchedule(expr); err != nil {
			return Record{}, false, err
		}
		fields["schedule"] = expr
	}
	if u.Status != nil {
		st, err := ParseStatus(string(*u.Status))
		if err != nil {
			return Record{}, false, err
		}
		fields["status"] = string(st)
	}
	if len(fields) == 0 {
		return s.GetJob(ctx, id)
	}
	fields["updated_at"] = FormatTime(s.now())

	doc, err := s.st.Patch(ctx, s.collection, id, fields)
	if errors.Is(err, storage.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	r, err := decodeRecord(doc)
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

// DeleteJob reports whether a job was removed.
func (s *Store) DeleteJob(ctx context.Context, id string) (bool, error) {
	err := s.st.Delete(ctx, s.collection, id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

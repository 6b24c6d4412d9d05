package editor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/menta2k/overlay-editor/pkg/geom"
	"github.com/menta2k/overlay-editor/pkg/store"
)

// Field is an inline-editable field of a shape.
type Field int

const (
	// FieldClass is the class name text.
	FieldClass Field = iota
	// FieldConfidence is the confidence shown as a 0-100 percentage.
	FieldConfidence
	// FieldScore is the confidence edited directly in 0-1.
	FieldScore
	// FieldArea is a region's normalized area in 0-1.
	FieldArea
)

func (f Field) String() string {
	switch f {
	case FieldClass:
		return "class"
	case FieldConfidence:
		return "confidence"
	case FieldScore:
		return "score"
	case FieldArea:
		return "area"
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

type labelEdit struct {
	field   Field
	initial string
	draft   string
}

// BeginLabelEdit puts one field of a shape into editing and returns the
// initial draft. Beginning again on the same shape replaces the previous
// field edit.
func (e *Editor) BeginLabelEdit(id store.ID, field Field) (string, error) {
	shape, err := e.store.Get(id)
	if err != nil {
		return "", err
	}
	if active, ok := e.Active(); ok && active == id {
		return "", fmt.Errorf("label edit on %s while %s: %w", id, e.state, ErrBusy)
	}
	value, err := fieldValue(shape, field)
	if err != nil {
		return "", err
	}
	e.labels[id] = &labelEdit{field: field, initial: value, draft: value}
	return value, nil
}

// SetDraft replaces the draft text of an active label edit.
func (e *Editor) SetDraft(id store.ID, text string) error {
	edit, ok := e.labels[id]
	if !ok {
		return fmt.Errorf("draft %s: %w", id, ErrNotEditing)
	}
	edit.draft = text
	return nil
}

// Draft returns the draft text of an active label edit.
func (e *Editor) Draft(id store.ID) (string, bool) {
	edit, ok := e.labels[id]
	if !ok {
		return "", false
	}
	return edit.draft, true
}

// LabelEditing reports which field of a shape is being edited.
func (e *Editor) LabelEditing(id store.ID) (Field, bool) {
	edit, ok := e.labels[id]
	if !ok {
		return 0, false
	}
	return edit.field, true
}

// CommitLabel validates the draft and, when valid, writes it to the shape.
// Invalid input is discarded without error. The edit ends either way.
func (e *Editor) CommitLabel(id store.ID) (bool, error) {
	edit, ok := e.labels[id]
	if !ok {
		return false, fmt.Errorf("commit %s: %w", id, ErrNotEditing)
	}
	delete(e.labels, id)

	shape, err := e.store.Get(id)
	if err != nil {
		return false, err
	}
	if !applyField(&shape, edit.field, edit.draft) {
		e.logger.Debug("label edit rejected",
			zap.Stringer("shape", id),
			zap.Stringer("field", edit.field),
			zap.String("draft", edit.draft),
		)
		return false, nil
	}
	if err := e.store.Replace(id, shape); err != nil {
		return false, err
	}
	e.notify("label-" + edit.field.String())
	return true, nil
}

// CancelLabel leaves label editing and restores the pre-edit value.
func (e *Editor) CancelLabel(id store.ID) error {
	edit, ok := e.labels[id]
	if !ok {
		return fmt.Errorf("cancel %s: %w", id, ErrNotEditing)
	}
	edit.draft = edit.initial
	delete(e.labels, id)
	return nil
}

// LabelKey maps editing keys: Enter commits, Escape cancels. Other keys are
// ignored.
func (e *Editor) LabelKey(id store.ID, key string) (bool, error) {
	switch key {
	case "Enter", "Tab":
		return e.CommitLabel(id)
	case "Escape", "Esc":
		return false, e.CancelLabel(id)
	}
	return false, nil
}

// Delete removes a shape. Any label edit or geometry operation on it ends.
func (e *Editor) Delete(id store.ID) error {
	if active, ok := e.Active(); ok && active == id {
		e.end()
	}
	delete(e.labels, id)
	if err := e.store.Remove(id); err != nil {
		return err
	}
	e.notify("delete")
	return nil
}

func fieldValue(s store.Shape, f Field) (string, error) {
	switch f {
	case FieldClass:
		return s.Class(), nil
	case FieldConfidence, FieldScore:
		if s.Kind == store.KindPolygon && s.Region.Confidence == nil {
			return "", nil
		}
		c, ok := s.Confidence()
		if !ok {
			return "", fmt.Errorf("%s on %s: %w", f, s.Kind, ErrFieldUnsupported)
		}
		if f == FieldConfidence {
			return formatNumber(math.Round(c*1000) / 10), nil
		}
		return formatNumber(c), nil
	case FieldArea:
		if s.Kind != store.KindPolygon {
			return "", fmt.Errorf("%s on %s: %w", f, s.Kind, ErrFieldUnsupported)
		}
		return formatNumber(s.Region.Area), nil
	}
	return "", fmt.Errorf("%s: %w", f, ErrFieldUnsupported)
}

// applyField validates draft and writes it to s.
func applyField(s *store.Shape, f Field, draft string) bool {
	draft = strings.TrimSpace(draft)
	if f == FieldClass {
		if draft == "" {
			return false
		}
		setClass(s, draft)
		return true
	}

	v, err := strconv.ParseFloat(strings.TrimSuffix(draft, "%"), 64)
	if err != nil || !geom.Finite(v) {
		return false
	}
	switch f {
	case FieldConfidence:
		if v < 0 || v > 100 {
			return false
		}
		setConfidence(s, v/100)
	case FieldScore:
		if v < 0 || v > 1 {
			return false
		}
		setConfidence(s, v)
	case FieldArea:
		if v < 0 || v > 1 || s.Kind != store.KindPolygon {
			return false
		}
		s.Region.Area = geom.ClampArea(v)
	default:
		return false
	}
	return true
}

func setClass(s *store.Shape, class string) {
	switch s.Kind {
	case store.KindBox:
		s.Detection.Class = class
	case store.KindPolygon:
		s.Region.Class = class
	case store.KindKeypoints:
		s.Keypoints.Class = class
	case store.KindLabel:
		s.Label.Class = class
	}
}

func setConfidence(s *store.Shape, c float64) {
	switch s.Kind {
	case store.KindBox:
		s.Detection.Confidence = c
	case store.KindPolygon:
		s.Region.Confidence = &c
	case store.KindKeypoints:
		s.Keypoints.Confidence = c
	case store.KindLabel:
		s.Label.Confidence = c
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"backend-safetrack/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrInvalidContact  = errors.New("invalid contact")
	ErrContactNotFound = errors.New("contact not found")
)

// Contact is a trusted person the owner wants alerted. Detail is stored as typed.
type Contact struct {
	ID     string `json:"id"`
	Name   string `json:"name" validate:"required,max=80"`
	Detail string `json:"detail" validate:"required,contact_detail"`
}

type Service struct {
	store    store.Store
	validate *validator.Validate
}

func NewService(st store.Store) *Service {
	v := validator.New()
	v.RegisterValidation("contact_detail", func(fl validator.FieldLevel) bool {
		detail := fl.Field().String()
		return IsPhone(detail) || IsHandle(detail) || v.Var(detail, "email") == nil
	})
	return &Service{store: st, validate: v}
}

func listPath(ownerID string) string {
	return "users/" + ownerID + "/contacts"
}

func (s *Service) List(ctx context.Context, ownerID string) ([]Contact, error) {
	children, err := s.store.Children(ctx, listPath(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	out := make([]Contact, 0, len(children))
	for id, raw := range children {
		var c Contact
		if err := json.Unmarshal(raw, &c); err != nil {
			continue
		}
		c.ID = id
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Service) Add(ctx context.Context, ownerID, name, detail string) (Contact, error) {
	c := Contact{
		Name:   strings.TrimSpace(name),
		Detail: strings.TrimSpace(detail),
	}
	if err := s.validate.Struct(c); err != nil {
		return Contact{}, fmt.Errorf("%w: %v", ErrInvalidContact, err)
	}

	c.ID = uuid.NewString()
	if err := s.store.Set(ctx, listPath(ownerID)+"/"+c.ID, c); err != nil {
		return Contact{}, fmt.Errorf("save contact: %w", err)
	}
	return c, nil
}

func (s *Service) Remove(ctx context.Context, ownerID, id string) error {
	path := listPath(ownerID) + "/" + id
	var existing Contact
	if err := s.store.Get(ctx, path, &existing); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrContactNotFound
		}
		return err
	}
	return s.store.Set(ctx, path, nil)
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsPhone accepts a local number of 10 or 11 digits once formatting is removed.
func IsPhone(detail string) bool {
	if strings.ContainsFunc(detail, unicode.IsLetter) || strings.Contains(detail, "@") {
		return false
	}
	n := len(Digits(detail))
	return n == 10 || n == 11
}

func IsHandle(detail string) bool {
	return strings.HasPrefix(detail, "@") && len(detail) > 1
}

// MaskPhone formats digits as "(DD) DDDDD-DDDD" while the user types.
func MaskPhone(value string) string {
	d := Digits(value)
	if len(d) < 3 {
		return d
	}
	rest := d[2:]
	if len(rest) >= 5 {
		rest = rest[:len(rest)-4] + "-" + rest[len(rest)-4:]
	}
	return "(" + d[:2] + ") " + rest
}

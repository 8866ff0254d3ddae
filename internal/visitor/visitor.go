// Package visitor describes the person being enrolled at the front desk.
package visitor

import "strings"

// DefaultType is applied when no visitor type was supplied.
//
// TODO: product to confirm whether a missing type should block enrollment
// instead of silently enrolling the visitor as "regular".
const DefaultType = "regular"

// Info is the visitor metadata sent along with an enrollment image.
// JSON field names follow the face service payload.
type Info struct {
	Name        string `json:"name"`
	Company     string `json:"company"`
	Visiting    string `json:"visiting"`
	VisitorType string `json:"visitorType"`
}

// WithDefaults returns a copy of info with fallbacks applied.
// A nil info yields an anonymous visitor of the default type with empty company and visiting.
func WithDefaults(info *Info) Info {
	if info == nil {
		return Info{VisitorType: DefaultType}
	}
	out := Info{
		Name:        strings.TrimSpace(info.Name),
		Company:     strings.TrimSpace(info.Company),
		Visiting:    strings.TrimSpace(info.Visiting),
		VisitorType: strings.TrimSpace(info.VisitorType),
	}
	if out.VisitorType == "" {
		out.VisitorType = DefaultType
	}
	return out
}

// Clone returns a detached copy so callers cannot mutate a flow's visitor.
func (i *Info) Clone() *Info {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

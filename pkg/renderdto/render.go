package renderdto

// ButtonStyle mirrors the platform's button styles.
type ButtonStyle string

const (
	StylePrimary   ButtonStyle = "primary"
	StyleSecondary ButtonStyle = "secondary"
	StyleSuccess   ButtonStyle = "success"
	StyleDanger    ButtonStyle = "danger"
)

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Visual is the embed-like part of a render. The core produces it and hands
// it to the gateway; it never inspects rendered content afterwards.
type Visual struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Footer      string  `json:"footer,omitempty"`
}

type Button struct {
	CustomID string      `json:"custom_id"`
	Label    string      `json:"label"`
	Style    ButtonStyle `json:"style"`
	Disabled bool        `json:"disabled,omitempty"`
}

type SelectOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Value       string `json:"value"`
	Emoji       string `json:"emoji,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

type Select struct {
	CustomID    string         `json:"custom_id"`
	Placeholder string         `json:"placeholder,omitempty"`
	MinValues   int            `json:"min_values"`
	MaxValues   int            `json:"max_values"`
	Options     []SelectOption `json:"options"`
	Disabled    bool           `json:"disabled,omitempty"`
}

// Row holds either one select menu or a run of buttons, never both.
type Row struct {
	Select  *Select  `json:"select,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
}

type Render struct {
	Visual Visual `json:"visual"`
	Rows   []Row  `json:"rows,omitempty"`
}

// Disabled returns a copy of the render with every component disabled.
// Used for the terminal render when a session expires.
func (r Render) Disabled() Render {
	out := Render{Visual: r.Visual, Rows: make([]Row, 0, len(r.Rows))}
	for _, row := range r.Rows {
		nr := Row{}
		if row.Select != nil {
			sel := *row.Select
			sel.Disabled = true
			nr.Select = &sel
		}
		for _, b := range row.Buttons {
			b.Disabled = true
			nr.Buttons = append(nr.Buttons, b)
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// HasSelect reports whether the render declares an enabled select menu with
// the given custom id.
func (r Render) HasSelect(customID string) bool {
	for _, row := range r.Rows {
		if row.Select != nil && row.Select.CustomID == customID && !row.Select.Disabled {
			return true
		}
	}
	return false
}

// HasButton reports whether the render declares an enabled button with the
// given custom id.
func (r Render) HasButton(customID string) bool {
	for _, row := range r.Rows {
		for _, b := range row.Buttons {
			if b.CustomID == customID && !b.Disabled {
				return true
			}
		}
	}
	return false
}

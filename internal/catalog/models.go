package catalog

// Client is a row of the clientes_digix reference table. Multiple rows may
// share a name with different subdivisions; a nil Subdivision is the
// "general" row for that client.
type Client struct {
	ID          int64   `json:"id"`
	Name        string  `json:"cliente"`
	Subdivision *string `json:"division_pais,omitempty"`
}

// Service is a leaf of the three-level service taxonomy.
type Service struct {
	ID           int64  `json:"id"`
	Category     string `json:"categoria"`
	Subcategory1 string `json:"subcategoria_1"`
	Subcategory2 string `json:"subcategoria_2"`
}

// Path renders the taxonomy path shown to users.
func (s Service) Path() string {
	return s.Category + " / " + s.Subcategory1 + " / " + s.Subcategory2
}

// BriefQuestion is one intake question. A nil Category marks a global
// question asked for every service; non-nil scope fields tie it to a leaf.
type BriefQuestion struct {
	ID           int64   `json:"id"`
	Text         string  `json:"pregunta_texto"`
	Detail       *string `json:"pregunta_detalle,omitempty"`
	Category     *string `json:"categoria,omitempty"`
	Subcategory1 *string `json:"subcategoria_1,omitempty"`
	Subcategory2 *string `json:"subcategoria_2,omitempty"`
	Order        int     `json:"orden"`
}

// Global reports whether the question applies to every service.
func (q BriefQuestion) Global() bool {
	return q.Category == nil
}

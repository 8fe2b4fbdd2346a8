package template

import (
	"context"

	"github.com/xnovu/notification-engine/internal/catalog"
)

// CatalogSource adapts internal/catalog.Repository to Source, so the
// Template Engine loads bodies through the same Catalog Access Layer as the
// rest of the engine.
type CatalogSource struct {
	Repo catalog.Repository
}

// NewCatalogSource returns a Source backed by repo.
func NewCatalogSource(repo catalog.Repository) *CatalogSource {
	return &CatalogSource{Repo: repo}
}

func (s *CatalogSource) LoadTemplate(ctx context.Context, key, tenant string) (body, subject string, found bool, err error) {
	tmpl, err := s.Repo.GetTemplate(ctx, key, tenant)
	if err != nil {
		return "", "", false, err
	}
	if tmpl == nil || !tmpl.Resolvable(tenant) {
		return "", "", false, nil
	}
	subject = ""
	if tmpl.SubjectTmpl != nil {
		subject = *tmpl.SubjectTmpl
	}
	return tmpl.BodyTmpl, subject, true, nil
}

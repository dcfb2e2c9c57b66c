package catalogmodule

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mantonx/coursevault/internal/database"
	"gorm.io/gorm"
)

// ModuleLinks returns the links of a course grouped by module name
func (s *Service) ModuleLinks(ctx context.Context, courseID uint) (map[string][]ModuleLinkView, error) {
	if _, err := s.loadCourse(ctx, courseID); err != nil {
		return nil, err
	}

	var links []database.ModuleLink
	if err := s.db.WithContext(ctx).Where("course_id = ?", courseID).Order("id ASC").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("failed to list module links: %w", err)
	}

	grouped := make(map[string][]ModuleLinkView)
	for i := range links {
		grouped[links[i].ModuleName] = append(grouped[links[i].ModuleName], newModuleLinkView(&links[i]))
	}
	return grouped, nil
}

// CreateModuleLink attaches a link to a module of the course. A blank label
// falls back to database.DefaultModuleLinkLabel.
func (s *Service) CreateModuleLink(ctx context.Context, courseID uint, in ModuleLinkInput) (*ModuleLinkView, error) {
	in.ModuleName = strings.TrimSpace(in.ModuleName)
	in.URL = strings.TrimSpace(in.URL)
	in.Label = strings.TrimSpace(in.Label)
	if in.ModuleName == "" || in.URL == "" {
		return nil, ErrModuleLinkFieldsRequired
	}
	if in.Label == "" {
		in.Label = database.DefaultModuleLinkLabel
	}
	if _, err := s.loadCourse(ctx, courseID); err != nil {
		return nil, err
	}

	link := &database.ModuleLink{
		CourseID:   courseID,
		ModuleName: in.ModuleName,
		Label:      in.Label,
		URL:        in.URL,
	}
	if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
		return nil, fmt.Errorf("failed to create module link: %w", err)
	}
	s.logger.Debug("Module link created", "course_id", courseID, "module", link.ModuleName, "link_id", link.ID)

	view := newModuleLinkView(link)
	return &view, nil
}

// UpdateModuleLink changes the label and URL of a link. Blank values leave
// the stored field as it is.
func (s *Service) UpdateModuleLink(ctx context.Context, id uint, label, url string) (*ModuleLinkView, error) {
	db := s.db.WithContext(ctx)

	var link database.ModuleLink
	if err := db.First(&link, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrModuleLinkNotFound
		}
		return nil, fmt.Errorf("failed to load module link: %w", err)
	}

	changes := map[string]interface{}{}
	if label = strings.TrimSpace(label); label != "" {
		changes["label"] = label
		link.Label = label
	}
	if url = strings.TrimSpace(url); url != "" {
		changes["questions_url"] = url
		link.URL = url
	}
	if len(changes) > 0 {
		if err := db.Model(&link).Updates(changes).Error; err != nil {
			return nil, fmt.Errorf("failed to update module link: %w", err)
		}
	}

	view := newModuleLinkView(&link)
	return &view, nil
}

// DeleteModuleLink removes a link
func (s *Service) DeleteModuleLink(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&database.ModuleLink{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete module link: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrModuleLinkNotFound
	}
	return nil
}

// ModuleLinkLabels returns every label in use across all courses, sorted,
// so clients can offer them as suggestions
func (s *Service) ModuleLinkLabels(ctx context.Context) ([]string, error) {
	labels := []string{}
	err := s.db.WithContext(ctx).Model(&database.ModuleLink{}).
		Distinct("label").
		Where("label <> ?", "").
		Order("label ASC").
		Pluck("label", &labels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list module link labels: %w", err)
	}
	return labels, nil
}

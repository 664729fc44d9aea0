package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type sequenceIDProvider struct {
	prefix string
	next   int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("%s-%d", p.prefix, p.next), nil
}

type rejectingNormalizer struct{}

func (rejectingNormalizer) Normalize(reference string) (string, error) {
	if reference == "bad" {
		return "", errors.New("unsupported preview")
	}
	return "normalized:" + reference, nil
}

func openTemplateDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "templates.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Category{}, &Template{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1_700_000_000, 0) },
		IDProvider: &sequenceIDProvider{prefix: "tpl"},
		Previews:   rejectingNormalizer{},
		CacheTTL:   time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func encodedSample(t *testing.T) json.RawMessage {
	t.Helper()
	encoded, err := EncodeElements(sampleElements(t))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return encoded
}

func TestServiceTemplateLifecycle(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, openTemplateDatabase(t))

	category, err := service.CreateCategory(ctx, "  Coffee Bags ")
	if err != nil {
		t.Fatalf("create category failed: %v", err)
	}
	if category.Name != "Coffee Bags" {
		t.Fatalf("expected trimmed category name, got %q", category.Name)
	}
	if _, err := service.CreateCategory(ctx, "Coffee Bags"); !errors.Is(err, ErrDuplicateCategory) {
		t.Fatalf("expected ErrDuplicateCategory, got %v", err)
	}

	created, err := service.CreateTemplate(ctx, TemplateInput{
		Name:       "Kraft pouch",
		CategoryID: category.CategoryID,
		Elements:   encodedSample(t),
		Preview:    "https://cdn.example.com/pouch.png",
	})
	if err != nil {
		t.Fatalf("create template failed: %v", err)
	}
	if created.Preview != "normalized:https://cdn.example.com/pouch.png" {
		t.Fatalf("expected normalized preview, got %q", created.Preview)
	}

	fields, err := service.RequiredFields(ctx, created.ID)
	if err != nil {
		t.Fatalf("required fields failed: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("expected 2 required fields, got %d", len(fields))
	}

	summaries, err := service.ListTemplates(ctx, category.CategoryID)
	if err != nil {
		t.Fatalf("list templates failed: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != created.ID {
		t.Fatalf("unexpected summaries %#v", summaries)
	}

	single := sampleElements(t)
	single.Objects = single.Objects[:3]
	encodedSingle, err := EncodeElements(single)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := service.UpdateTemplate(ctx, created.ID, TemplateInput{
		Name:       "Kraft pouch v2",
		CategoryID: category.CategoryID,
		Elements:   encodedSingle,
	}); err != nil {
		t.Fatalf("update template failed: %v", err)
	}
	fields, err = service.RequiredFields(ctx, created.ID)
	if err != nil {
		t.Fatalf("required fields after update failed: %v", err)
	}
	if len(fields) != 1 {
		t.Fatalf("expected cache invalidation to expose 1 required field, got %d", len(fields))
	}

	if err := service.DeleteTemplate(ctx, created.ID); err != nil {
		t.Fatalf("delete template failed: %v", err)
	}
	if _, err := service.GetTemplate(ctx, created.ID); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound after delete, got %v", err)
	}
	if err := service.DeleteTemplate(ctx, created.ID); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound on second delete, got %v", err)
	}
}

func TestServiceServesCachedDocumentsUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	db := openTemplateDatabase(t)
	service := newTestService(t, db)

	category, err := service.CreateCategory(ctx, "Boxes")
	if err != nil {
		t.Fatalf("create category failed: %v", err)
	}
	created, err := service.CreateTemplate(ctx, TemplateInput{Name: "Mailer", CategoryID: category.CategoryID, Elements: encodedSample(t)})
	if err != nil {
		t.Fatalf("create template failed: %v", err)
	}
	if _, err := service.GetTemplate(ctx, created.ID); err != nil {
		t.Fatalf("get template failed: %v", err)
	}

	if err := db.Model(&Template{}).Where("template_id = ?", created.ID).Update("name", "Changed behind the cache").Error; err != nil {
		t.Fatalf("direct update failed: %v", err)
	}
	cached, err := service.GetTemplate(ctx, created.ID)
	if err != nil {
		t.Fatalf("get template failed: %v", err)
	}
	if cached.Name != "Mailer" {
		t.Fatalf("expected cached name, got %q", cached.Name)
	}

	service.documents.Invalidate(created.ID)
	fresh, err := service.GetTemplate(ctx, created.ID)
	if err != nil {
		t.Fatalf("get template failed: %v", err)
	}
	if fresh.Name != "Changed behind the cache" {
		t.Fatalf("expected fresh name after invalidation, got %q", fresh.Name)
	}
}

func TestServiceRejectsInvalidTemplates(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, openTemplateDatabase(t))
	category, err := service.CreateCategory(ctx, "Labels")
	if err != nil {
		t.Fatalf("create category failed: %v", err)
	}

	tests := []struct {
		name  string
		input TemplateInput
		want  error
	}{
		{
			name:  "missing-name",
			input: TemplateInput{CategoryID: category.CategoryID, Elements: encodedSample(t)},
			want:  ErrInvalidTemplate,
		},
		{
			name:  "unknown-category",
			input: TemplateInput{Name: "Jar label", CategoryID: "nope", Elements: encodedSample(t)},
			want:  ErrCategoryNotFound,
		},
		{
			name:  "corrupt-elements",
			input: TemplateInput{Name: "Jar label", CategoryID: category.CategoryID, Elements: json.RawMessage(`"{oops"`)},
			want:  ErrCorruptTemplateDocument,
		},
		{
			name:  "bad-preview",
			input: TemplateInput{Name: "Jar label", CategoryID: category.CategoryID, Elements: encodedSample(t), Preview: "bad"},
			want:  ErrInvalidTemplate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.CreateTemplate(ctx, tt.input); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestServiceReadsLegacyStringRows(t *testing.T) {
	ctx := context.Background()
	db := openTemplateDatabase(t)
	service := newTestService(t, db)

	wrapped, err := json.Marshal(legacyDocumentJSON)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	row := Template{
		TemplateID:       "legacy-1",
		Name:             "Old pouch",
		CategoryID:       "legacy",
		Elements:         datatypes.JSON(wrapped),
		FormatVersion:    FormatVersionLegacy,
		CreatedAtSeconds: 1,
		UpdatedAtSeconds: 1,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("insert legacy row failed: %v", err)
	}

	fields, err := service.RequiredFields(ctx, "legacy-1")
	if err != nil {
		t.Fatalf("required fields failed: %v", err)
	}
	if len(fields) != 1 || fields[0].FieldID != "field-obj-2" {
		t.Fatalf("unexpected legacy fields %#v", fields)
	}
}

func TestServiceReportsCorruptStoredRows(t *testing.T) {
	ctx := context.Background()
	db := openTemplateDatabase(t)
	service := newTestService(t, db)

	row := Template{
		TemplateID:       "broken-1",
		Name:             "Broken",
		CategoryID:       "legacy",
		Elements:         datatypes.JSON(`"{\"objects\": [ {"`),
		CreatedAtSeconds: 1,
		UpdatedAtSeconds: 1,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("insert row failed: %v", err)
	}
	if _, err := service.RequiredFields(ctx, "broken-1"); !errors.Is(err, ErrCorruptTemplateDocument) {
		t.Fatalf("expected ErrCorruptTemplateDocument, got %v", err)
	}
}

func TestNewServiceValidatesConfig(t *testing.T) {
	if _, err := NewService(ServiceConfig{}); err == nil {
		t.Fatalf("expected error for missing database")
	}
	_, err := NewService(ServiceConfig{Database: openTemplateDatabase(t)})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "templates.service.new.missing_id_provider" {
		t.Fatalf("expected missing_id_provider service error, got %v", err)
	}
}

package transform

import (
	"context"
	"strings"

	"github.com/siherrmann/pano/core/graph"
	"github.com/siherrmann/pano/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCase = cases.Title(language.English)

// EmailToPerson guesses the owner's name from the local part of the
// address: john.doe@example.com becomes John Doe.
type EmailToPerson struct {
	descriptor
}

func NewEmailToPerson() *EmailToPerson {
	return &EmailToPerson{descriptor{
		name:        "Email to Person",
		description: "Extract person information from email address",
		inputs:      []model.EntityType{model.EntityTypeEmail},
		outputs:     []model.EntityType{model.EntityTypePerson},
	}}
}

func (t *EmailToPerson) Run(ctx context.Context, entity *model.Entity, _ graph.Reader) ([]*model.Entity, error) {
	local, _, ok := strings.Cut(entity.String("address"), "@")
	if !ok || local == "" {
		return nil, nil
	}

	parts := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '_' })
	for i, part := range parts {
		parts[i] = titleCase.String(strings.ToLower(part))
	}
	fullName := strings.Join(parts, " ")
	if len(fullName) < 2 {
		return nil, nil
	}

	person, err := model.NewEntity(model.EntityTypePerson, map[string]any{
		"full_name": fullName,
		"source":    "Email transform",
	})
	if err != nil {
		return nil, err
	}
	return []*model.Entity{person}, nil
}

// EmailToWebsite returns the website of the mail domain.
type EmailToWebsite struct {
	descriptor
}

func NewEmailToWebsite() *EmailToWebsite {
	return &EmailToWebsite{descriptor{
		name:        "Email to Website",
		description: "Derive the website of the email domain",
		inputs:      []model.EntityType{model.EntityTypeEmail},
		outputs:     []model.EntityType{model.EntityTypeWebsite},
	}}
}

func (t *EmailToWebsite) Run(ctx context.Context, entity *model.Entity, _ graph.Reader) ([]*model.Entity, error) {
	domain := entity.String("domain")
	if domain == "" {
		_, domain, _ = strings.Cut(entity.String("address"), "@")
	}
	if domain == "" {
		return nil, nil
	}

	website, err := model.NewEntity(model.EntityTypeWebsite, map[string]any{
		"url":    "https://" + strings.ToLower(domain),
		"domain": strings.ToLower(domain),
		"source": "Email transform",
	})
	if err != nil {
		return nil, err
	}
	return []*model.Entity{website}, nil
}

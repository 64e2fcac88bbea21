package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Section names a patchable region of a PortfolioDocument.
type Section string

const (
	SectionContact        Section = "contact"
	SectionSkills         Section = "skills"
	SectionExperience     Section = "experience"
	SectionEducation      Section = "education"
	SectionProjects       Section = "projects"
	SectionCertifications Section = "certifications"
	SectionAchievements   Section = "achievements"
	SectionSocialLinks    Section = "social_links"
)

// Sections lists all patchable sections in display order.
func Sections() []Section {
	return []Section{
		SectionContact,
		SectionSkills,
		SectionExperience,
		SectionEducation,
		SectionProjects,
		SectionCertifications,
		SectionAchievements,
		SectionSocialLinks,
	}
}

// ParseSection validates a section name from the wire.
func ParseSection(s string) (Section, error) {
	sec := Section(s)
	for _, known := range Sections() {
		if sec == known {
			return sec, nil
		}
	}
	return "", fmt.Errorf("unknown section: %q", s)
}

// Contact holds the contact and summary fields of a CV.
type Contact struct {
	FullName string `json:"full_name,omitempty"`
	Headline string `json:"headline,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
	Website  string `json:"website,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// Skills groups skill lists by kind.
type Skills struct {
	Technical []string `json:"technical,omitempty"`
	Soft      []string `json:"soft,omitempty"`
	Languages []string `json:"languages,omitempty"`
}

// ExperienceEntry is one work-experience item.
type ExperienceEntry struct {
	Company     string `json:"company"`
	Title       string `json:"title"`
	Location    string `json:"location,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"` // empty = current
	Description string `json:"description,omitempty"`
}

// EducationEntry is one education item.
type EducationEntry struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree,omitempty"`
	Field       string `json:"field,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

// ProjectEntry is one project item.
type ProjectEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Tech        []string `json:"tech,omitempty"`
}

// CertificationEntry is one certification item.
type CertificationEntry struct {
	Name   string `json:"name"`
	Issuer string `json:"issuer,omitempty"`
	Date   string `json:"date,omitempty"`
	URL    string `json:"url,omitempty"`
}

// AchievementEntry is one achievement item.
type AchievementEntry struct {
	Title       string `json:"title"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
}

// PortfolioDocument is the nested CV/resume record for one user.
// Exactly one document exists per user id; it is created lazily on the
// first profile load and never hard-deleted.
type PortfolioDocument struct {
	UserID         string               `json:"user_id"`
	Contact        Contact              `json:"contact"`
	Skills         Skills               `json:"skills"`
	Experience     []ExperienceEntry    `json:"experience,omitempty"`
	Education      []EducationEntry     `json:"education,omitempty"`
	Projects       []ProjectEntry       `json:"projects,omitempty"`
	Certifications []CertificationEntry `json:"certifications,omitempty"`
	Achievements   []AchievementEntry   `json:"achievements,omitempty"`
	SocialLinks    map[string]string    `json:"social_links,omitempty"`
	APIKey         string               `json:"api_key,omitempty"`
	Tier           Tier                 `json:"tier"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// NewPortfolioDocument creates the default document for a user who has no
// stored profile yet: empty sections, a fresh API key, free tier.
func NewPortfolioDocument(userID string) *PortfolioDocument {
	now := time.Now().UTC()
	return &PortfolioDocument{
		UserID:    userID,
		Tier:      TierFree,
		APIKey:    GenerateAPIKey(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApplySection merges a JSON patch into one section of the document.
// Object sections (contact, skills, social_links) merge at field level:
// keys present in the patch overwrite, absent keys are untouched. List
// sections replace wholesale. A rejected patch leaves the document
// untouched, so every section decodes into a scratch value first; a type
// error halfway through an object otherwise leaves the well-typed fields
// already written. UpdatedAt is bumped on success.
func (d *PortfolioDocument) ApplySection(section Section, patch json.RawMessage) error {
	var err error
	switch section {
	case SectionContact:
		merged := d.Contact
		if err = json.Unmarshal(patch, &merged); err == nil {
			d.Contact = merged
		}
	case SectionSkills:
		// Copy the slices too: the decoder appends into an existing
		// backing array, which would mutate the live lists in place
		// before a later field fails to decode.
		merged := d.Skills
		merged.Technical = append([]string(nil), d.Skills.Technical...)
		merged.Soft = append([]string(nil), d.Skills.Soft...)
		merged.Languages = append([]string(nil), d.Skills.Languages...)
		if err = json.Unmarshal(patch, &merged); err == nil {
			d.Skills = merged
		}
	case SectionExperience:
		var entries []ExperienceEntry
		if err = json.Unmarshal(patch, &entries); err == nil {
			d.Experience = entries
		}
	case SectionEducation:
		var entries []EducationEntry
		if err = json.Unmarshal(patch, &entries); err == nil {
			d.Education = entries
		}
	case SectionProjects:
		var entries []ProjectEntry
		if err = json.Unmarshal(patch, &entries); err == nil {
			d.Projects = entries
		}
	case SectionCertifications:
		var entries []CertificationEntry
		if err = json.Unmarshal(patch, &entries); err == nil {
			d.Certifications = entries
		}
	case SectionAchievements:
		var entries []AchievementEntry
		if err = json.Unmarshal(patch, &entries); err == nil {
			d.Achievements = entries
		}
	case SectionSocialLinks:
		var links map[string]string
		if err = json.Unmarshal(patch, &links); err == nil {
			if d.SocialLinks == nil {
				d.SocialLinks = make(map[string]string, len(links))
			}
			for k, v := range links {
				d.SocialLinks[k] = v
			}
		}
	default:
		return fmt.Errorf("unknown section: %q", section)
	}
	if err != nil {
		return fmt.Errorf("failed to apply patch to section %s: %w", section, err)
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a deep copy of the document. Consumers of reconciled state
// receive clones so they can never mutate the reconciler's copy.
func (d *PortfolioDocument) Clone() *PortfolioDocument {
	if d == nil {
		return nil
	}
	c := *d
	c.Skills.Technical = append([]string(nil), d.Skills.Technical...)
	c.Skills.Soft = append([]string(nil), d.Skills.Soft...)
	c.Skills.Languages = append([]string(nil), d.Skills.Languages...)
	c.Experience = append([]ExperienceEntry(nil), d.Experience...)
	c.Education = append([]EducationEntry(nil), d.Education...)
	c.Projects = make([]ProjectEntry, len(d.Projects))
	for i, p := range d.Projects {
		p.Tech = append([]string(nil), p.Tech...)
		c.Projects[i] = p
	}
	c.Certifications = append([]CertificationEntry(nil), d.Certifications...)
	c.Achievements = append([]AchievementEntry(nil), d.Achievements...)
	if d.SocialLinks != nil {
		c.SocialLinks = make(map[string]string, len(d.SocialLinks))
		for k, v := range d.SocialLinks {
			c.SocialLinks[k] = v
		}
	}
	return &c
}

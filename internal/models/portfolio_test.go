package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseSection(t *testing.T) {
	tests := []struct {
		in      string
		want    Section
		wantErr bool
	}{
		{"contact", SectionContact, false},
		{"skills", SectionSkills, false},
		{"experience", SectionExperience, false},
		{"social_links", SectionSocialLinks, false},
		{"Contact", "", true},
		{"hobbies", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		got, err := ParseSection(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseSection(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSection(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseSection(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestNewPortfolioDocument_Defaults(t *testing.T) {
	doc := NewPortfolioDocument("alice")

	if doc.UserID != "alice" {
		t.Errorf("expected alice, got %s", doc.UserID)
	}
	if doc.Tier != TierFree {
		t.Errorf("new documents start on the free tier, got %s", doc.Tier)
	}
	if !strings.HasPrefix(doc.APIKey, "cvf_") {
		t.Errorf("expected cvf_ api key, got %q", doc.APIKey)
	}
	if doc.CreatedAt.IsZero() || doc.UpdatedAt.IsZero() {
		t.Error("expected timestamps set")
	}

	other := NewPortfolioDocument("bob")
	if other.APIKey == doc.APIKey {
		t.Error("api keys must be unique per document")
	}
}

func TestApplySection_ContactMerge(t *testing.T) {
	doc := NewPortfolioDocument("alice")
	doc.Contact.FullName = "Alice"
	doc.Contact.Email = "alice@example.com"

	if err := doc.ApplySection(SectionContact, json.RawMessage(`{"headline":"Engineer"}`)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if doc.Contact.FullName != "Alice" {
		t.Error("absent field clobbered by object merge")
	}
	if doc.Contact.Email != "alice@example.com" {
		t.Error("absent field clobbered by object merge")
	}
	if doc.Contact.Headline != "Engineer" {
		t.Errorf("patched field not applied: %q", doc.Contact.Headline)
	}
}

func TestApplySection_ListReplacesWholesale(t *testing.T) {
	doc := NewPortfolioDocument("alice")
	doc.Experience = []ExperienceEntry{
		{Company: "OldCo", Title: "Junior"},
		{Company: "MidCo", Title: "Senior"},
	}

	patch := json.RawMessage(`[{"company":"NewCo","title":"Staff"}]`)
	if err := doc.ApplySection(SectionExperience, patch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if len(doc.Experience) != 1 || doc.Experience[0].Company != "NewCo" {
		t.Errorf("expected wholesale replacement, got %+v", doc.Experience)
	}
}

func TestApplySection_EmptyListClears(t *testing.T) {
	doc := NewPortfolioDocument("alice")
	doc.Projects = []ProjectEntry{{Name: "old"}}

	if err := doc.ApplySection(SectionProjects, json.RawMessage(`[]`)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(doc.Projects) != 0 {
		t.Errorf("expected cleared list, got %+v", doc.Projects)
	}
}

func TestApplySection_SocialLinksKeyMerge(t *testing.T) {
	doc := NewPortfolioDocument("alice")
	doc.SocialLinks = map[string]string{"github": "https://github.com/alice", "x": "https://x.com/alice"}

	patch := json.RawMessage(`{"github":"https://github.com/alice2","linkedin":"https://linkedin.com/in/alice"}`)
	if err := doc.ApplySection(SectionSocialLinks, patch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if doc.SocialLinks["github"] != "https://github.com/alice2" {
		t.Error("patched key not overwritten")
	}
	if doc.SocialLinks["x"] != "https://x.com/alice" {
		t.Error("absent key removed by merge")
	}
	if doc.SocialLinks["linkedin"] != "https://linkedin.com/in/alice" {
		t.Error("new key not added")
	}
}

func TestApplySection_MalformedPatch(t *testing.T) {
	doc := NewPortfolioDocument("alice")
	doc.Contact.FullName = "Alice"
	before := doc.UpdatedAt

	if err := doc.ApplySection(SectionContact, json.RawMessage(`[1,2,3]`)); err == nil {
		t.Fatal("expected error for wrong-shape patch")
	}
	if doc.Contact.FullName != "Alice" {
		t.Error("failed patch mutated the document")
	}
	if doc.UpdatedAt != before {
		t.Error("failed patch bumped UpdatedAt")
	}
}

func TestApplySection_TypeErrorMidObject(t *testing.T) {
	// The decoder fills well-typed fields before hitting the bad one, so a
	// partially valid patch must not leak any of them into the document.
	doc := NewPortfolioDocument("alice")
	doc.Contact.FullName = "Alice"
	doc.Contact.Email = "alice@example.com"
	before := doc.UpdatedAt

	patch := json.RawMessage(`{"full_name":"Mallory","email":123}`)
	if err := doc.ApplySection(SectionContact, patch); err == nil {
		t.Fatal("expected type error")
	}
	if doc.Contact.FullName != "Alice" {
		t.Errorf("rejected patch mutated the document: full_name = %q", doc.Contact.FullName)
	}
	if doc.Contact.Email != "alice@example.com" {
		t.Errorf("rejected patch mutated the document: email = %q", doc.Contact.Email)
	}
	if doc.UpdatedAt != before {
		t.Error("rejected patch bumped UpdatedAt")
	}
}

func TestApplySection_TypeErrorMidSkills_KeepsLiveSlices(t *testing.T) {
	// Slice fields decode by appending into the existing backing array, so
	// the scratch copy must not share storage with the live document.
	doc := NewPortfolioDocument("alice")
	doc.Skills.Technical = []string{"go", "rust"}

	patch := json.RawMessage(`{"technical":["python","java"],"soft":"not-a-list"}`)
	if err := doc.ApplySection(SectionSkills, patch); err == nil {
		t.Fatal("expected type error")
	}
	if doc.Skills.Technical[0] != "go" || doc.Skills.Technical[1] != "rust" {
		t.Errorf("rejected patch mutated live skills: %v", doc.Skills.Technical)
	}
}

func TestApplySection_UnknownSection(t *testing.T) {
	doc := NewPortfolioDocument("alice")
	if err := doc.ApplySection(Section("hobbies"), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for unknown section")
	}
}

func TestApplySection_BumpsUpdatedAt(t *testing.T) {
	doc := NewPortfolioDocument("alice")
	before := doc.UpdatedAt

	if err := doc.ApplySection(SectionSkills, json.RawMessage(`{"technical":["go"]}`)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if doc.UpdatedAt.Before(before) {
		t.Error("UpdatedAt moved backwards")
	}
}

func TestClone_DeepCopy(t *testing.T) {
	doc := NewPortfolioDocument("alice")
	doc.Skills.Technical = []string{"go"}
	doc.Experience = []ExperienceEntry{{Company: "Co"}}
	doc.Projects = []ProjectEntry{{Name: "p", Tech: []string{"go"}}}
	doc.SocialLinks = map[string]string{"github": "url"}

	clone := doc.Clone()
	clone.Skills.Technical[0] = "rust"
	clone.Experience[0].Company = "Other"
	clone.Projects[0].Tech[0] = "rust"
	clone.SocialLinks["github"] = "changed"

	if doc.Skills.Technical[0] != "go" {
		t.Error("skills slice shared with clone")
	}
	if doc.Experience[0].Company != "Co" {
		t.Error("experience slice shared with clone")
	}
	if doc.Projects[0].Tech[0] != "go" {
		t.Error("nested project tech slice shared with clone")
	}
	if doc.SocialLinks["github"] != "url" {
		t.Error("social links map shared with clone")
	}
}

func TestClone_Nil(t *testing.T) {
	var doc *PortfolioDocument
	if doc.Clone() != nil {
		t.Error("nil clone must be nil")
	}
}

func TestSessionStateClone_Independent(t *testing.T) {
	state := &SessionState{
		Identity:  Identity{UID: "alice"},
		Portfolio: NewPortfolioDocument("alice"),
		Status:    PortfolioLoaded,
	}

	clone := state.Clone()
	clone.Portfolio.Contact.FullName = "Mutated"
	clone.Identity.UID = "other"

	if state.Portfolio.Contact.FullName == "Mutated" {
		t.Error("portfolio shared with clone")
	}
	if state.Identity.UID != "alice" {
		t.Error("identity shared with clone")
	}

	var nilState *SessionState
	if nilState.Clone() != nil {
		t.Error("nil state clone must be nil")
	}
}

func TestLiftDerived(t *testing.T) {
	doc := NewPortfolioDocument("alice")
	doc.Tier = TierPro
	state := &SessionState{Portfolio: doc}

	state.LiftDerived()
	if state.APIKey != doc.APIKey || state.Tier != TierPro {
		t.Errorf("derived fields not lifted: key=%q tier=%q", state.APIKey, state.Tier)
	}

	state.Portfolio = nil
	state.LiftDerived()
	if state.APIKey != "" || state.Tier != "" {
		t.Error("derived fields must clear when no portfolio is present")
	}
}

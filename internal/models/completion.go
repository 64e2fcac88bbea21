package models

// SectionCompletion reports, per section, how complete the document is as a
// percentage. The heuristic is deliberately simple: a section scores by how
// many of its meaningful fields are filled.
func SectionCompletion(d *PortfolioDocument) map[Section]int {
	out := make(map[Section]int, len(Sections()))
	if d == nil {
		for _, s := range Sections() {
			out[s] = 0
		}
		return out
	}

	out[SectionContact] = contactCompletion(d.Contact)
	out[SectionSkills] = skillsCompletion(d.Skills)
	out[SectionExperience] = listCompletion(len(d.Experience))
	out[SectionEducation] = listCompletion(len(d.Education))
	out[SectionProjects] = listCompletion(len(d.Projects))
	out[SectionCertifications] = listCompletion(len(d.Certifications))
	out[SectionAchievements] = listCompletion(len(d.Achievements))
	out[SectionSocialLinks] = listCompletion(len(d.SocialLinks))
	return out
}

// OverallCompletion averages section completion across all sections.
func OverallCompletion(d *PortfolioDocument) int {
	sections := SectionCompletion(d)
	if len(sections) == 0 {
		return 0
	}
	total := 0
	for _, pct := range sections {
		total += pct
	}
	return total / len(sections)
}

func contactCompletion(c Contact) int {
	fields := []string{c.FullName, c.Headline, c.Email, c.Phone, c.Location, c.Website, c.Summary}
	filled := 0
	for _, f := range fields {
		if f != "" {
			filled++
		}
	}
	return filled * 100 / len(fields)
}

func skillsCompletion(s Skills) int {
	groups := 0
	if len(s.Technical) > 0 {
		groups++
	}
	if len(s.Soft) > 0 {
		groups++
	}
	if len(s.Languages) > 0 {
		groups++
	}
	return groups * 100 / 3
}

// listCompletion saturates at three entries: one entry is a start, three or
// more counts as complete.
func listCompletion(n int) int {
	if n >= 3 {
		return 100
	}
	return n * 100 / 3
}

package match

import "testing"

func candidate(id int64, leaf, combo string) Candidate {
	return Candidate{
		ID:         id,
		Label:      leaf,
		Searchable: []string{Normalize(leaf), Normalize(combo)},
	}
}

func TestRankScoring(t *testing.T) {
	candidates := []Candidate{
		candidate(1, "Volantes A5", "Impresiones Material Publicitario Volantes A5"),
		candidate(2, "Pendones", "Impresiones Gran Formato Pendones"),
		candidate(3, "Traducción de video", "Audiovisual Traducciones Traducción de video"),
	}

	ranked := Rank("impresion volantes a5", candidates)
	if len(ranked) == 0 {
		t.Fatal("expected at least one candidate")
	}
	if ranked[0].ID != 1 {
		t.Errorf("expected candidate 1 first, got %d", ranked[0].ID)
	}
	if ranked[0].Score != scoreTokenSubset {
		t.Errorf("expected token-subset score %d, got %d", scoreTokenSubset, ranked[0].Score)
	}
	for _, r := range ranked {
		if r.Score == 0 {
			t.Errorf("candidate %d with score 0 should have been dropped", r.ID)
		}
	}
}

func TestRankSortedDescending(t *testing.T) {
	candidates := []Candidate{
		candidate(1, "Volantes", "Impresiones Volantes"),
		candidate(2, "Volantes A5", "Impresiones Material Publicitario Volantes A5"),
		candidate(3, "Pendones", "Impresiones Pendones"),
	}
	ranked := Rank("volantes impresiones", candidates)
	for i := 1; i < len(ranked); i++ {
		prev, cur := ranked[i-1], ranked[i]
		if cur.Score > prev.Score {
			t.Fatalf("candidates not sorted by score: %d before %d", prev.Score, cur.Score)
		}
		if cur.Score == prev.Score && combinedLen(cur.Searchable) > combinedLen(prev.Searchable) {
			t.Fatal("ties not broken by combined searchable length")
		}
	}
}

func TestRankSubstringNeedsFourChars(t *testing.T) {
	candidates := []Candidate{candidate(1, "Stand ferial", "Eventos Stands Stand ferial")}

	// "and" appears as a substring of "stand" but is under the length floor
	// and shares no token.
	if got := Rank("and", candidates); len(got) != 0 {
		t.Errorf("expected no candidates for 3-char substring, got %d", len(got))
	}
	if got := Rank("feria", candidates); len(got) != 1 {
		t.Errorf("expected substring match for %q", "feria")
	}
}

func TestRankSynonyms(t *testing.T) {
	candidates := []Candidate{
		candidate(1, "Volantes A5", "Impresiones Material Publicitario Volantes A5"),
	}
	ranked := Rank("flyers", candidates)
	if len(ranked) != 1 {
		t.Fatalf("expected flyer->volante synonym match, got %d candidates", len(ranked))
	}
	if ranked[0].Score != scoreTokenSubset {
		t.Errorf("expected score %d, got %d", scoreTokenSubset, ranked[0].Score)
	}
}

func TestRankEmptyQuery(t *testing.T) {
	candidates := []Candidate{candidate(1, "Volantes", "Impresiones Volantes")}
	if got := Rank("  ¡! ", candidates); len(got) != 0 {
		t.Errorf("expected no candidates for empty normalized query, got %d", len(got))
	}
}

func TestExpandToken(t *testing.T) {
	got := ExpandToken("lonas")
	found := false
	for _, v := range got {
		if v == "banner" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected banner variant for lonas, got %v", got)
	}
	if vs := ExpandToken("papel"); len(vs) != 1 || vs[0] != "papel" {
		t.Errorf("unexpected expansion for papel: %v", vs)
	}
}

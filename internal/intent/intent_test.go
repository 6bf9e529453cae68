package intent

import "testing"

func TestClassifyCasual(t *testing.T) {
	tests := []struct {
		query string
		want  Intent
	}{
		{"hi", IntentCasual},
		{"hello", IntentCasual},
		{"thanks", IntentCasual},
		{"  Thanks!  ", IntentCasual},
		{"THANKS", IntentCasual},
		{"ok cool", IntentCasual},
		{"thank you very much", IntentCasual},
		{"what's up", IntentCasual},

		{"what is the operating pressure", IntentNeedsRetrieval},
		{"explain the findings", IntentNeedsRetrieval},
		{"hello, can you summarize the report for me", IntentNeedsRetrieval},
		{"extract all values", IntentNeedsRetrieval},
		{"", IntentCasual},
	}

	for _, tt := range tests {
		if got := Classify(tt.query); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestClassifyIdempotentOnNormalization(t *testing.T) {
	variants := []string{"thanks", "  Thanks!  ", "THANKS", "thanks\n"}
	for _, q := range variants {
		if got := Classify(q); got != IntentCasual {
			t.Errorf("Classify(%q) = %v, want casual", q, got)
		}
	}
}

func TestDetectDetailLevel(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		requested DetailLevel
		want      DetailLevel
	}{
		{"explicit brief wins", "analyze the full dataset in depth please", DetailBrief, DetailBrief},
		{"explicit detailed wins", "hi", DetailDetailed, DetailDetailed},
		{"analytical trigger", "analyze the pressure trends", DetailAuto, DetailDetailed},
		{"short plain query", "pressure at well 7", DetailAuto, DetailBrief},
		{
			"long query",
			"can you walk through every section of the report and tell me which wells had readings above the operating threshold last month",
			DetailAuto,
			DetailDetailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectDetailLevel(tt.query, tt.requested); got != tt.want {
				t.Errorf("DetectDetailLevel(%q, %v) = %v, want %v", tt.query, tt.requested, got, tt.want)
			}
		})
	}
}

package main

import "testing"

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		seedURL string
		pages   int
		workers int
		batch   int
		mode    string
		timeout int
		wantErr bool
	}{
		{"全部未指定", "", 0, 0, 0, "", 0, false},
		{"有效参数", "https://www.yellowpages.com/search?search_terms=pizza", 5, 8, 2, "static", 60, false},
		{"无效URL", "ftp://example.com", 0, 0, 0, "", 0, true},
		{"页数过大", "", 101, 0, 0, "", 0, true},
		{"并发过大", "", 0, 51, 0, "", 0, true},
		{"负数页数", "", -1, 0, 0, "", 0, true},
		{"未知模式", "", 0, 0, 0, "dynamic", 0, true},
		{"负数超时", "", 0, 0, 0, "", -5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFlags(tt.seedURL, tt.pages, tt.workers, tt.batch, tt.mode, tt.timeout, 0)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

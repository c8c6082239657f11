package schema

import "testing"

func TestForEmbedded_AssetCatalog(t *testing.T) {
	v, err := ForEmbedded("asset-catalog.schema.json")
	if err != nil {
		t.Fatalf("ForEmbedded: %v", err)
	}

	good := []byte(`{"images":[{"idiom":"ios-marketing","size":"1024x1024","scale":"1x"}],"info":{"author":"xcode","version":1}}`)
	if res := v.Validate(good); !res.Valid {
		t.Errorf("expected valid catalog, got errors: %v", res.Errors)
	}

	missingInfo := []byte(`{"images":[]}`)
	if res := v.Validate(missingInfo); res.Valid {
		t.Error("catalog without info must be invalid")
	}

	badSize := []byte(`{"images":[{"idiom":"ios-marketing","size":"huge"}],"info":{"author":"xcode","version":1}}`)
	if res := v.Validate(badSize); res.Valid {
		t.Error("catalog with malformed size must be invalid")
	}
}

func TestForEmbedded_Caches(t *testing.T) {
	a, err := ForEmbedded("asset-catalog.schema.json")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ForEmbedded("asset-catalog.schema.json")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("expected cached validator instance")
	}
}

func TestForEmbedded_Unknown(t *testing.T) {
	if _, err := ForEmbedded("missing.schema.json"); err == nil {
		t.Error("expected error for unknown schema")
	}
}

func TestValidate_UnparsableDocument(t *testing.T) {
	v, err := ForEmbedded("asset-catalog.schema.json")
	if err != nil {
		t.Fatal(err)
	}
	res := v.Validate([]byte("{not json"))
	if res.Valid {
		t.Error("unparsable document must be invalid")
	}
	if len(res.Errors) == 0 {
		t.Error("expected parse error to be reported in result")
	}
}

package skufilter

// reservedSingletons are SKU values never eligible for PDP generation.
var reservedSingletons = []string{"default", "sample", "test"}

// testPrefixes are SKU prefixes excluded by ProductsOnly.
var testPrefixes = []string{"test_", "temp_", "demo_", "sample_"}

// AllowAll accepts every SKU that passes basic format bounds.
func AllowAll() (*Filter, error) {
	return New(Config{MinLen: 1, MaxLen: 64})
}

// ProductsOnly excludes test/temp/demo/sample-prefixed SKUs and reserved
// singleton identifiers.
func ProductsOnly() (*Filter, error) {
	patterns := make([]string, len(testPrefixes))
	for i, p := range testPrefixes {
		patterns[i] = "^" + p
	}
	return New(Config{
		MinLen:       1,
		MaxLen:       64,
		DenyList:     reservedSingletons,
		DenyPatterns: patterns,
	})
}

// SpecificPrefixes allows only SKUs matching one of the given prefixes.
func SpecificPrefixes(prefixes ...string) (*Filter, error) {
	patterns := make([]string, len(prefixes))
	for i, p := range prefixes {
		patterns[i] = "^" + p
	}
	return New(Config{
		MinLen:        1,
		MaxLen:        64,
		AllowPatterns: patterns,
	})
}

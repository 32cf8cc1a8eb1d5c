package tesseract

// tesseractLangs maps BCP-47 hints to Tesseract traineddata names.
func tesseractLangs(hints []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, h := range hints {
		name, ok := traineddata[h]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

var traineddata = map[string]string{
	"ja": "jpn",
	"en": "eng",
	"zh": "chi_sim",
	"ko": "kor",
}

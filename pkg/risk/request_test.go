package risk

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() PredictionRequest {
	return PredictionRequest{
		Age:                   62,
		BMI:                   31.4,
		MenopauseStatus:       "Post-menopausal",
		AbnormalBleeding:      "Yes",
		PelvicPain:            "No",
		ThickEndometrium:      12.5,
		Hypertension:          "Yes",
		Diabetes:              "No",
		FamilyHistoryCancer:   "No",
		Smoking:               "No",
		EstrogenTherapy:       "Yes",
		CA125Level:            48.2,
		HistologyType:         "ClearCell",
		Parity:                2,
		Gravidity:             3,
		HormoneReceptorStatus: "NotApplicable",
		VaginalDischarge:      "No",
		UnexplainedWeightLoss: "Yes",
	}
}

func TestNormalize_AllTableKeys(t *testing.T) {
	tables := []struct {
		name  string
		table map[string]string
		set   func(*PredictionRequest, string)
		get   func(PredictionRequest) string
	}{
		{
			name:  "menopause",
			table: MenopauseStatuses,
			set:   func(r *PredictionRequest, v string) { r.MenopauseStatus = v },
			get:   func(r PredictionRequest) string { return r.MenopauseStatus },
		},
		{
			name:  "histology",
			table: HistologyTypes,
			set:   func(r *PredictionRequest, v string) { r.HistologyType = v },
			get:   func(r PredictionRequest) string { return r.HistologyType },
		},
		{
			name:  "hormone receptor",
			table: HormoneReceptorStatuses,
			set:   func(r *PredictionRequest, v string) { r.HormoneReceptorStatus = v },
			get:   func(r PredictionRequest) string { return r.HormoneReceptorStatus },
		},
	}

	for _, tt := range tables {
		for in, want := range tt.table {
			t.Run(tt.name+"/"+in, func(t *testing.T) {
				req := sampleRequest()
				tt.set(&req, in)
				got := Normalize(req)
				assert.Equal(t, want, tt.get(got))

				// idempotent
				assert.Equal(t, got, Normalize(got))
			})
		}
	}
}

func TestNormalize_CanonicalValues(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{"Premenopausal", "Postmenopausal", "Perimenopausal"},
		uniqueValues(MenopauseStatuses))
	assert.ElementsMatch(t,
		[]string{"Clear Cell", "Endometrioid", "Normal", "Other", "Serous"},
		uniqueValues(HistologyTypes))
	assert.ElementsMatch(t,
		[]string{"Negative", "Positive", "Unknown"},
		uniqueValues(HormoneReceptorStatuses))
}

func uniqueValues(m map[string]string) []string {
	seen := make(map[string]bool)
	var list []string
	for _, v := range m {
		if !seen[v] {
			seen[v] = true
			list = append(list, v)
		}
	}
	return list
}

func TestNormalize_MissPassesThrough(t *testing.T) {
	misses := []string{"", "post-menopausal", " Postmenopausal", "Postmenopausal ", "clear cell", "N/A", "Mucinous"}

	for _, v := range misses {
		req := sampleRequest()
		req.MenopauseStatus = v
		req.HistologyType = v
		req.HormoneReceptorStatus = v

		got := Normalize(req)
		assert.Equal(t, v, got.MenopauseStatus)
		assert.Equal(t, v, got.HistologyType)
		assert.Equal(t, v, got.HormoneReceptorStatus)
	}
}

func TestNormalize_LeavesOtherFields(t *testing.T) {
	req := sampleRequest()
	got := Normalize(req)

	want := req
	want.MenopauseStatus = "Postmenopausal"
	want.HistologyType = "Clear Cell"
	want.HormoneReceptorStatus = "Unknown"
	assert.Equal(t, want, got)

	// input is not modified
	assert.Equal(t, "Post-menopausal", req.MenopauseStatus)
}

func TestNormalizeStrict(t *testing.T) {
	got, err := NormalizeStrict(sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Postmenopausal", got.MenopauseStatus)

	req := sampleRequest()
	req.HistologyType = "Mucinous"
	_, err = NormalizeStrict(req)
	require.Error(t, err)

	var uve *UnmappedValueError
	require.True(t, errors.As(err, &uve))
	assert.Equal(t, "HistologyType", uve.Field)
	assert.Equal(t, "Mucinous", uve.Value)
}

func TestDecodeRequest(t *testing.T) {
	b, err := json.Marshal(sampleRequest())
	require.NoError(t, err)

	req, err := DecodeRequest(b)
	require.NoError(t, err)
	assert.Equal(t, sampleRequest(), req)
}

func TestDecodeRequest_MissingField(t *testing.T) {
	_, err := DecodeRequest([]byte(`{}`))
	var mfe *MissingFieldError
	require.True(t, errors.As(err, &mfe))
	assert.Equal(t, "Age", mfe.Field)

	for _, name := range FeatureNames {
		t.Run(name, func(t *testing.T) {
			var fields map[string]any
			b, err := json.Marshal(sampleRequest())
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(b, &fields))

			delete(fields, name)
			b, err = json.Marshal(fields)
			require.NoError(t, err)

			_, err = DecodeRequest(b)
			var mfe *MissingFieldError
			require.True(t, errors.As(err, &mfe))
			assert.Equal(t, name, mfe.Field)
			assert.Equal(t, "missing required field: "+name, err.Error())

			fields[name] = nil
			b, err = json.Marshal(fields)
			require.NoError(t, err)
			_, err = DecodeRequest(b)
			assert.ErrorAs(t, err, &mfe)
		})
	}
}

func TestDecodeRequest_Invalid(t *testing.T) {
	for _, in := range []string{"", "{", "[]", `{"Age": "old"}`} {
		_, err := DecodeRequest([]byte(in))
		assert.ErrorContains(t, err, "invalid request body", in)
	}
}

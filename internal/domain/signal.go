package domain

// AgreementLevel describes how closely the ensemble models agree.
type AgreementLevel string

const (
	AgreementHigh    AgreementLevel = "high"
	AgreementMedium  AgreementLevel = "medium"
	AgreementLow     AgreementLevel = "low"
	AgreementUnknown AgreementLevel = "unknown"
)

// ModelAssessment is one model's parsed opinion within an ensemble call.
// A model that errored or returned unparsable output carries Err and is
// excluded from the reduction.
type ModelAssessment struct {
	Model            string   `json:"model"`
	FraudProbability float64  `json:"fraudProbability"`
	Confidence       float64  `json:"confidence"`
	RiskFactors      []string `json:"riskFactors,omitempty"`
	Err              string   `json:"error,omitempty"`
}

// EnsembleOpinion is the reduced output of the multi-model ensemble.
type EnsembleOpinion struct {
	FraudProbability float64           `json:"fraudProbability"`
	Confidence       float64           `json:"confidence"`
	IsFraudulent     bool              `json:"isFraudulent"`
	RiskFactors      []string          `json:"riskFactors"`
	ModelsUsed       []string          `json:"modelsUsed"`
	Agreement        AgreementLevel    `json:"agreementLevel"`
	PerModel         []ModelAssessment `json:"individualModels,omitempty"`
}

// NeutralEnsembleOpinion is substituted by the orchestrator when every
// ensemble model fails. The fusion engine never sees a missing signal.
func NeutralEnsembleOpinion() EnsembleOpinion {
	return EnsembleOpinion{
		FraudProbability: 0.5,
		Confidence:       0.7,
		Agreement:        AgreementUnknown,
	}
}

// PatternOpinion is the qualitative judgment from the multimodal
// pattern analyst for a transaction.
type PatternOpinion struct {
	IsSuspicious bool     `json:"isSuspicious"`
	Confidence   float64  `json:"confidence"`
	Anomalies    []string `json:"anomalies"`
	RiskFactors  []string `json:"riskFactors"`
	Explanation  string   `json:"explanation"`

	// Parsed is false when the backend response contained no usable
	// structured block; Raw then holds the unmodified response text.
	Parsed bool   `json:"parsed"`
	Raw    string `json:"rawResponse,omitempty"`
}

// DocumentOpinion is the pattern analyst's judgment for a document image.
type DocumentOpinion struct {
	IsFraudulent      bool     `json:"isFraudulent"`
	Confidence        float64  `json:"confidence"`
	FraudIndicators   []string `json:"fraudIndicators"`
	AuthenticityScore float64  `json:"authenticityScore"`
	Recommendations   []string `json:"recommendations"`

	Parsed bool   `json:"parsed"`
	Raw    string `json:"rawResponse,omitempty"`
}

// Clamp bounds v to [0,1]. All probabilities, confidences and similarity
// scores crossing a package boundary go through this.
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

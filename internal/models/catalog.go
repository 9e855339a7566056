package models

// AIModel describes one selectable inference endpoint configuration.
type AIModel struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	SupportsImages bool   `json:"supports_images"`
}

const DefaultModelID = "google/gemini-2.0-flash-lite-preview-02-05:free"

// Models is the static catalog served to the client; the model id on a chat
// must be one of these.
var Models = []AIModel{
	{
		ID:             "google/gemini-2.0-flash-lite-preview-02-05:free",
		Name:           "Gemini Flash Lite",
		Description:    "Fast and efficient model for general tasks and image analysis",
		SupportsImages: true,
	},
	{
		ID:             "microsoft/phi-3-mini-128k-instruct:free",
		Name:           "Phi-3 Mini",
		Description:    "Microsoft's compact 7B parameter model with 128k context window",
		SupportsImages: false,
	},
	{
		ID:             "microsoft/phi-3-medium-128k-instruct:free",
		Name:           "Phi-3 Medium",
		Description:    "Microsoft's 14B parameter model with 128k context window",
		SupportsImages: false,
	},
	{
		ID:             "cognitivecomputations/dolphin3.0-r1-mistral-24b:free",
		Name:           "Dolphin Mistral R1",
		Description:    "Advanced language model for complex reasoning",
		SupportsImages: false,
	},
	{
		ID:             "cognitivecomputations/dolphin3.0-mistral-24b:free",
		Name:           "Dolphin Mistral",
		Description:    "Optimized for natural conversations and analysis",
		SupportsImages: false,
	},
	{
		ID:             "qwen/qwen-vl-plus:free",
		Name:           "Qwen VL Plus",
		Description:    "Visual language model for image understanding",
		SupportsImages: true,
	},
	{
		ID:             "qwen/qwen2.5-vl-72b-instruct:free",
		Name:           "Qwen 2.5 VL",
		Description:    "Advanced visual-language model with 72B parameters",
		SupportsImages: true,
	},
	{
		ID:             "google/gemini-2.0-flash-thinking-exp:free",
		Name:           "Gemini Flash Thinking",
		Description:    "Experimental model focused on analytical thinking",
		SupportsImages: true,
	},
	{
		ID:             "mistralai/mistral-small-24b-instruct-2501:free",
		Name:           "Mistral Small",
		Description:    "Efficient instruction-following model",
		SupportsImages: false,
	},
	{
		ID:             "deepseek/deepseek-r1-distill-llama-70b:free",
		Name:           "DeepSeek R1 Distill",
		Description:    "Distilled version of LLaMA for efficient processing",
		SupportsImages: false,
	},
	{
		ID:             "deepseek/deepseek-r1:free",
		Name:           "DeepSeek R1",
		Description:    "Full version of DeepSeek for complex tasks",
		SupportsImages: false,
	},
	{
		ID:             "meta-llama/llama-3.3-70b-instruct:free",
		Name:           "Llama 3.3",
		Description:    "Latest Llama model for instruction following",
		SupportsImages: false,
	},
	{
		ID:             "deepseek/deepseek-chat:free",
		Name:           "DeepSeek Chat",
		Description:    "Specialized in conversational interactions",
		SupportsImages: false,
	},
	{
		ID:             "nvidia/llama-3.1-nemotron-70b-instruct:free",
		Name:           "Nemotron",
		Description:    "NVIDIA-optimized Llama model",
		SupportsImages: false,
	},
}

// FindModel returns the catalog entry for id, or nil when unknown.
func FindModel(id string) *AIModel {
	for i := range Models {
		if Models[i].ID == id {
			return &Models[i]
		}
	}
	return nil
}

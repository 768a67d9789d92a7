package generator

import "slices"

// 内置 pipeline 的字段名。两种变体共享输出字段，方便展示层统一处理。
const (
	FieldContentType            = "content_type"
	FieldBrand                  = "brand"
	FieldBrandDescription       = "brand_description"
	FieldTopic                  = "topic"
	FieldWritingStyle           = "writing_style"
	FieldTargetAudience         = "target_audience"
	FieldAdditionalInstructions = "additional_instructions"
	FieldIndustry               = "industry"
	FieldCompetitors            = "competitors"
	FieldGoals                  = "goals"

	FieldAnalysis      = "analysis"
	FieldFirstDraft    = "first_draft"
	FieldCritique      = "critique"
	FieldFinalOutput   = "final_output"
	FieldRevisedOutput = "revised_output"
)

const (
	ArticlePipeline       = "article"
	BrandStrategyPipeline = "brand_strategy"
)

// AnalysisItems is how many '|'-separated instructions the analysis stage asks for.
const AnalysisItems = 7

// ContentTypes are the content kinds offered for the article pipeline.
var ContentTypes = []string{
	"Advertisement",
	"Article",
	"Blog Post",
	"Email Newsletter",
	"Infographics",
	"Press Release",
	"Product Description",
	"Product Review",
	"SEO-Optimized Articles",
	"Short Story",
	"Social Media Captions",
	"Social Media Post",
}

const articleAnalysisTemplate = "Instructions: Create a {content_type} for {brand} in the {writing_style} writing style. " +
	"Description of {brand}: {brand_description}. Target Audience: {target_audience} \n" +
	" Topic of the {content_type}: {topic}\n" +
	"Additional Instructions: {additional_instructions}\n" +
	"Based on the instructions, I want you to rewrite and summarize it based on how you understood them. " +
	"Format your analysis like this: \n '- WHAT I UNDERSTOOD' \n '- REASONING' \n '- PLAN' \n " +
	"After the analysis, reiterate the instructions to yourself. Write your answer in a conversational and " +
	"instructional way as if you are reiterating the instructions to someone else. " +
	"YOUR INSTRUCTIONS MUST BE ORGANIZED WITH BULLET POINTS. There must be seven items in your instructions. " +
	"Separate each instructional item with '|' as a delimiter. " +
	"THEN, after your analysis, write the requirements for creating a {content_type} for {topic}. \n" +
	" A guide question you should answer is this: What is the structure of creating the {content_type}? Does it need chapters?\n" +
	"Output:"

const articleDraftTemplate = "Instructions: {analysis}\n\n" +
	"Based on the instructions, create a {content_type} for {brand}. Target Audience: {target_audience}\n" +
	"Output:"

const articleCritiqueTemplate = "First Draft: {first_draft}\n\n" +
	"Make a short and concise analysis of this first draft of a/an {content_type} for {brand}. " +
	"Note that the topic of the {content_type} is {topic}. " +
	"Follow this format for the analysis (append bullet points, separate each point with '|'): \n" +
	" 'DRAFT SUMMARY:' \n 'CRITICISM AND SUGGESTIONS:' \n 'PLAN:' \n" +
	"Output:"

const articleFinalTemplate = "First Draft of {brand}'s {content_type}: {first_draft} \n" +
	" Suggestions on how to improve the {content_type}: {critique}\n\n" +
	" Write the improved draft:"

const articleFeedbackTemplate = "Latest draft of {brand}'s {content_type}: {final_output}\n" +
	"Suggestions already applied to this draft: {critique}\n" +
	"This draft had the following user feedback: {user_feedback} \n" +
	" Output based on user feedback:"

const strategyAnalysisTemplate = "Instructions: Build a brand strategy for {brand}, a company in the {industry} industry. " +
	"Description of {brand}: {brand_description}. Target Audience: {target_audience}\n" +
	"Main competitors: {competitors}\n" +
	"Business goals: {goals}\n" +
	"Additional Instructions: {additional_instructions}\n" +
	"Based on the instructions, rewrite and summarize them based on how you understood them. " +
	"Format your analysis like this: \n '- WHAT I UNDERSTOOD' \n '- REASONING' \n '- PLAN' \n " +
	"Then list the seven strategic questions the strategy must answer. " +
	"Separate each question with '|' as a delimiter.\n" +
	"Output:"

const strategyDraftTemplate = "Instructions: {analysis}\n\n" +
	"Based on the instructions, write a brand strategy for {brand} covering positioning, value proposition, " +
	"messaging pillars, voice and tone, and channel plan. Target Audience: {target_audience}\n" +
	"Output:"

const strategyCritiqueTemplate = "First Draft: {first_draft}\n\n" +
	"Make a short and concise analysis of this first draft of {brand}'s brand strategy against its competitors ({competitors}) " +
	"and goals ({goals}). Follow this format for the analysis (append bullet points, separate each point with '|'): \n" +
	" 'DRAFT SUMMARY:' \n 'CRITICISM AND SUGGESTIONS:' \n 'PLAN:' \n" +
	"Output:"

const strategyFinalTemplate = "First Draft of {brand}'s brand strategy: {first_draft} \n" +
	" Suggestions on how to improve the strategy: {critique}\n\n" +
	" Write the improved brand strategy:"

const strategyFeedbackTemplate = "Latest version of {brand}'s brand strategy: {final_output}\n" +
	"Suggestions already applied to this version: {critique}\n" +
	"This version had the following user feedback: {user_feedback} \n" +
	" Output based on user feedback:"

// Variant 把一个 pipeline 和它的反馈 stage 绑在一起。
type Variant struct {
	Pipeline *Pipeline
	Feedback *FeedbackStage
}

// ArticleVariant builds the content draft pipeline.
func ArticleVariant() *Variant {
	p := MustPipeline(PipelineSpec{
		Name:        ArticlePipeline,
		Description: "Marketing content draft: analysis, first draft, critique and improved draft.",
		ExternalInputs: []string{
			FieldContentType, FieldBrand, FieldBrandDescription, FieldTopic,
			FieldWritingStyle, FieldTargetAudience, FieldAdditionalInstructions,
		},
		Stages: []StageSpec{
			{
				Name: "analyze_instructions",
				Inputs: []string{
					FieldContentType, FieldBrand, FieldBrandDescription, FieldTopic,
					FieldTargetAudience, FieldWritingStyle, FieldAdditionalInstructions,
				},
				Output:   FieldAnalysis,
				Template: articleAnalysisTemplate,
			},
			{
				Name:     "write_first_draft",
				Inputs:   []string{FieldAnalysis, FieldContentType, FieldBrand, FieldTargetAudience},
				Output:   FieldFirstDraft,
				Template: articleDraftTemplate,
			},
			{
				Name:     "critique_draft",
				Inputs:   []string{FieldFirstDraft, FieldContentType, FieldBrand, FieldTopic},
				Output:   FieldCritique,
				Template: articleCritiqueTemplate,
			},
			{
				Name:     "write_final_draft",
				Inputs:   []string{FieldCritique, FieldContentType, FieldBrand, FieldFirstDraft},
				Output:   FieldFinalOutput,
				Template: articleFinalTemplate,
			},
		},
		Outputs: []string{FieldAnalysis, FieldFirstDraft, FieldCritique, FieldFinalOutput},
	})
	fs := MustFeedbackStage(p, StageSpec{
		Name:     "apply_feedback",
		Inputs:   []string{FieldContentType, FieldBrand, FieldCritique, FieldFinalOutput, FeedbackField},
		Output:   FieldRevisedOutput,
		Template: articleFeedbackTemplate,
	})
	return &Variant{Pipeline: p, Feedback: fs}
}

// BrandStrategyVariant builds the brand strategy pipeline.
func BrandStrategyVariant() *Variant {
	p := MustPipeline(PipelineSpec{
		Name:        BrandStrategyPipeline,
		Description: "Brand strategy: analysis, first draft, critique and improved strategy.",
		ExternalInputs: []string{
			FieldBrand, FieldBrandDescription, FieldIndustry, FieldTargetAudience,
			FieldCompetitors, FieldGoals, FieldAdditionalInstructions,
		},
		Stages: []StageSpec{
			{
				Name: "analyze_brief",
				Inputs: []string{
					FieldBrand, FieldBrandDescription, FieldIndustry, FieldTargetAudience,
					FieldCompetitors, FieldGoals, FieldAdditionalInstructions,
				},
				Output:   FieldAnalysis,
				Template: strategyAnalysisTemplate,
			},
			{
				Name:     "draft_strategy",
				Inputs:   []string{FieldAnalysis, FieldBrand, FieldTargetAudience},
				Output:   FieldFirstDraft,
				Template: strategyDraftTemplate,
			},
			{
				Name:     "critique_strategy",
				Inputs:   []string{FieldFirstDraft, FieldBrand, FieldCompetitors, FieldGoals},
				Output:   FieldCritique,
				Template: strategyCritiqueTemplate,
			},
			{
				Name:     "finalize_strategy",
				Inputs:   []string{FieldCritique, FieldBrand, FieldFirstDraft},
				Output:   FieldFinalOutput,
				Template: strategyFinalTemplate,
			},
		},
		Outputs: []string{FieldAnalysis, FieldFirstDraft, FieldCritique, FieldFinalOutput},
	})
	fs := MustFeedbackStage(p, StageSpec{
		Name:     "apply_feedback",
		Inputs:   []string{FieldBrand, FieldCritique, FieldFinalOutput, FeedbackField},
		Output:   FieldRevisedOutput,
		Template: strategyFeedbackTemplate,
	})
	return &Variant{Pipeline: p, Feedback: fs}
}

// BuiltinVariants returns fresh copies of every built-in variant.
func BuiltinVariants() []*Variant {
	return []*Variant{ArticleVariant(), BrandStrategyVariant()}
}

// IsContentType reports whether ct is one of ContentTypes.
func IsContentType(ct string) bool {
	return slices.Contains(ContentTypes, ct)
}

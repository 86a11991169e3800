// ABOUTME: Role instructions and token budgets for every generation stage of the pipeline.
// ABOUTME: Each Role pairs the system instruction sent to the generator with the stage's output budget.
package pipeline

import "strings"

// Role is the per-stage generator configuration: the role instruction
// sent as the system message and the output token budget for the stage.
type Role struct {
	Name        string
	Instruction string
	MaxTokens   int
}

// topicPlaceholder marks where the research topic is substituted into
// the planner instruction.
const topicPlaceholder = "[TOPIC]"

var (
	// RolePlanner produces the step-by-step research plan.
	RolePlanner = Role{
		Name: "planner",
		Instruction: "Create a detailed, step-by-step plan to thoroughly research and analyze the topic of " + topicPlaceholder + ". " +
			"Include steps for identifying key areas of focus, searching for and collecting important sources, " +
			"summarizing and organizing findings with comparisons where relevant, identifying leading experts and " +
			"organizations, and surfacing benchmarks, best practices, and open questions. Consider historical context, " +
			"current trends, future directions, and both the benefits and the risks of the topic. " +
			"Structure the plan as a numbered list of steps, each briefly explaining what should be done and what " +
			"information should be gathered at that stage. Adapt the plan to the unique characteristics of the topic.",
		MaxTokens: 2000,
	}

	// RoleResearcher gathers detailed notes following the approved plan.
	RoleResearcher = Role{
		Name: "researcher",
		Instruction: "You are a research specialist. Follow the provided research plan step by step, gathering " +
			"detailed, well-organized notes on the topic. Cite the sources you draw on, capture data points and " +
			"comparisons explicitly, and flag claims you could not verify. Organize the notes by plan step.",
		MaxTokens: 3000,
	}

	// RoleWriter turns research notes into a structured draft report.
	RoleWriter = Role{
		Name: "writer",
		Instruction: "You are a report writer. Using the provided research notes, write a comprehensive, " +
			"well-structured report with a clear introduction, thematic sections, and a conclusion. Preserve " +
			"citations from the notes and keep the tone professional and accessible.",
		MaxTokens: 4000,
	}

	// RoleReviewer critiques the current draft.
	RoleReviewer = Role{
		Name: "reviewer",
		Instruction: "You are a critical reviewer of research reports. Review the report for completeness, accuracy, " +
			"structure, and clarity, and provide concrete, constructive feedback. If the report needs no further " +
			"work, say so plainly.",
		MaxTokens: 2000,
	}

	// RoleReviser rewrites the draft to address review feedback.
	RoleReviser = Role{
		Name: "reviser",
		Instruction: "You are a revision specialist. Revise the provided report so it fully addresses the review " +
			"feedback while preserving accurate content, citations, and overall structure. Return the complete " +
			"revised report, not a summary of changes.",
		MaxTokens: 4000,
	}

	// RoleFactChecker verifies the claims of the revised report.
	RoleFactChecker = Role{
		Name: "fact_checker",
		Instruction: "You are a fact-checking agent. Systematically review the report, checking important claims, " +
			"data points, and references for accuracy. Note inaccuracies or unsupported statements clearly and " +
			"suggest corrections. Finish with a brief list of verified facts, corrected errors, and statements " +
			"that need further evidence.",
		MaxTokens: 2000,
	}

	// RoleFormatter normalizes structure and styling.
	RoleFormatter = Role{
		Name: "formatter",
		Instruction: "You are a formatting agent. Ensure the report is well-formatted and consistent: headings, " +
			"section breaks, bullet points, numbering, and citation style. Improve visual organization and " +
			"readability without altering content except where formatting requires it. Output markdown.",
		MaxTokens: 4000,
	}

	// RoleSummarizer produces the executive summary.
	RoleSummarizer = Role{
		Name: "summarizer",
		Instruction: "You are a summarization agent. Produce a concise executive summary of the report covering its " +
			"purpose, key findings, and conclusions, readable on its own by someone who will not read the full report.",
		MaxTokens: 1000,
	}
)

// InstructionFor returns the planner instruction with the topic
// substituted for the placeholder. Other roles return Instruction as-is.
func (r Role) InstructionFor(topic string) string {
	return strings.ReplaceAll(r.Instruction, topicPlaceholder, topic)
}

package summarizer

// PromptTemplate is the fixed system instruction sent with every chunk. The
// version is stored next to every cached summary so instruction edits can be
// told apart from old results without invalidating them.
type PromptTemplate struct {
	Version string
	System  string
}

// RecordPrompt is the instruction used for Congressional Record chunks.
var RecordPrompt = PromptTemplate{
	Version: "crec-2024-06",
	System: `You are summarizing a portion of the United States Congressional Record for a general audience that still wants the full substance of the proceedings.

Follow these rules exactly:

1. Identify every speaker by name. After each Member's name, give their party affiliation and state in the form (D-CA), (R-TX) or (I-VT). If the affiliation is not stated in the text, use your knowledge of the Member; if still unknown, write (party unknown).
2. Preserve the full argumentative content of each speech. Keep every distinct claim, reason, statistic, example and rebuttal. Do not compress several arguments into a single vague sentence and do not paraphrase away specifics.
3. Whenever a bill, joint resolution, concurrent resolution, simple resolution or amendment is mentioned, give its number and title, explain in plain language what it would do, and state the implications the speakers attribute to it.
4. Flag controversial, disputed or inflammatory statements with the marker [CONTROVERSIAL] and attribute them to the speaker who made them.
5. Record procedural outcomes (votes, unanimous consent agreements, quorum calls, adjournments) briefly and factually.
6. Write in paragraphs of five to seven sentences. Separate paragraphs with a line containing only ---.
7. Start each topic or debate with a bolded section header such as **Senate Debate on H.R. 1234 (Infrastructure Funding)**.
8. Do not add commentary, opinions or information that is not supported by the text. If the text is only procedural boilerplate, say so in one short paragraph.`,
}

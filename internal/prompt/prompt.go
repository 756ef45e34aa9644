// Package prompt renders the text sent to the LLM tools on every turn.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"github.com/Iron-Ham/afkcode/internal/checklist"
)

// DefaultCompletionToken ends a loop when a tool prints it on a line by
// itself.
const DefaultCompletionToken = "__ALL_TASKS_COMPLETE__"

// DefaultWorker is the worker prompt template.
const DefaultWorker = "@{checklist} Do the thing."

// DefaultController is the controller prompt template.
const DefaultController = `
You are the controller in an autonomous development loop.
Study the shared checklist in @{checklist}, and reduce the length of it by removing completely finished checklist items.
If and only if all high-level requirements and every checklist item are fully satisfied, output {completion_token} on a line by itself at the very end of your reply; otherwise, do not print that string.
`

// StopConfirmation is sent after a tool emitted the completion token, to
// reject accidental emissions.
const StopConfirmation = `I detected that the previous response emitted the stop/completion token "{completion_token}".
Re-open @{checklist}. Confirm that every requirement and task is complete, the code builds cleanly, and all changes are committed.
Emit "{completion_token}" again on a line by itself at the very end ONLY if the loop should end. 
If ANYTHING remains, do NOT emit the token. Instead, briefly note what's left (one line), then continue normal work.
`

// DefaultVerifier audits the checklists after a worker phase.
const DefaultVerifier = `You are the verifier in an autonomous development loop. The workers believe their current work is finished. Audit that claim.

Root checklist:
{root_agents_md}

Component checklists:
{component_checklists}

For every item marked [x] or [V], and every item that was deleted as done, inspect the code and confirm the work really exists, builds and is tested.
- If an item is not actually done, change its marker back to [ ] and add a sub-item describing what is missing.
- If you discover required work that no checklist mentions, add it as a new [ ] item in the checklist closest to the affected code.
- Only edit AGENTS.md checklist files. Do not change source code.
- Keep new items short and actionable.

Do NOT print {completion_token}. Your only output is the edited checklists.
`

const tokenReminder = "IMPORTANT: If all work is complete, no tasks remain, the code builds cleanly, and all changes are committed, emit `%s` on a line by itself at the very end of your response to signal completion. Otherwise, continue working.\n"

// Render substitutes {checklist} and {completion_token} and trims the
// result.
func Render(template, checklistPath, token string) string {
	r := strings.NewReplacer("{checklist}", checklistPath, "{completion_token}", token)
	return strings.TrimSpace(r.Replace(template))
}

// Build produces a full turn prompt: an @-reference to the checklist, the
// rendered template, and a reminder about the completion token unless the
// prompt or the checklist file already mention it.
func Build(checklistPath, template, token string) string {
	p := fmt.Sprintf("@%s\n\n%s\n", checklistPath, Render(template, checklistPath, token))

	if !mentions(p, token) && !fileMentions(checklistPath, token) {
		p += "\n---\n\n" + fmt.Sprintf(tokenReminder, token)
	}
	return p
}

func mentions(text, token string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(token))
}

func fileMentions(path, token string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return mentions(string(data), token)
}

// Confirmation builds the stop-confirmation turn, quoting the response
// that emitted the token.
func Confirmation(checklistPath, token, previous string) string {
	var b strings.Builder
	b.WriteString(Build(checklistPath, StopConfirmation, token))
	b.WriteString("\nPrevious response:\n")
	b.WriteString(previous)
	if !strings.HasSuffix(previous, "\n") {
		b.WriteByte('\n')
	}
	return b.String()
}

// CompletionIntent asks a tool, with thinking disabled, whether output
// emitted token on purpose.
func CompletionIntent(output, token string) string {
	return fmt.Sprintf(`Read the text I just sent you. If it appears that this text contains a deliberate attempt to print the string %[1]s to indicate the conclusion of the loop, print %[1]s again and nothing else. If this text does NOT contain a deliberate attempt to print %[1]s to indicate the conclusion of the loop, you must NOT print %[1]s in your output. For example, if you see that you were merely thinking about this string and your thoughts got printed in the LLM, that would be an accidental trigger of this completion token and we don't want to accidentally exit. This prompt is a confirmation of your intent to conclude the looping of the LLM by emitting the completion token.

Text to analyze:
%[2]s
`, token, output)
}

// ContainsToken reports whether output mentions token, ignoring case. An
// empty token never matches.
func ContainsToken(output, token string) bool {
	if token == "" {
		return false
	}
	return mentions(output, token)
}

// WorkItems describes a worker's leased items. It returns "" when there
// are none.
func WorkItems(items []checklist.Item) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("You have been assigned the following work items:\n\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- %s (from %s:%d)\n", item.Content, item.File, item.Line)
		for _, sub := range item.SubItems {
			fmt.Fprintf(&b, "  %s\n", sub)
		}
	}
	b.WriteString("\nFocus on completing these assigned items. ")
	return b.String()
}

// Verifier fills a verifier template from a scan of the checklist tree.
func Verifier(template string, scan *checklist.ScanResult, token string) string {
	root := "No root AGENTS.md found"
	if scan.RootFile != "" {
		root = "@" + scan.RootFile
	}

	components := "No component AGENTS.md files found"
	if len(scan.ComponentFiles) > 0 {
		refs := make([]string, len(scan.ComponentFiles))
		for i, f := range scan.ComponentFiles {
			refs[i] = "@" + f
		}
		components = strings.Join(refs, "\n")
	}

	return strings.NewReplacer(
		"{root_agents_md}", root,
		"{component_checklists}", components,
		"{completion_token}", token,
	).Replace(template)
}

package worker

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

const resultHTML = `<!DOCTYPE html>
<html>
<body>
<p>Hello {{.User.Username}},</p>
<p>here are your results for <strong>{{.Test.Name}}</strong>.</p>
{{if .Grade}}
<p>Points: {{points .Grade.Points}} / {{.Test.QuestionCount}}<br>
Grade: {{percent .Grade.Grade}}</p>
{{else}}
<p>You have not approved this test yet.</p>
{{end}}
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>#</th><th>Type</th><th>Your answer</th><th>Points</th></tr>
{{range .Answers}}<tr><td>{{.Number}}</td><td>{{.Type}}</td><td>{{answer .Submitted}}</td><td>{{points .Points}}</td></tr>
{{else}}<tr><td colspan="4">No answers.</td></tr>
{{end}}</table>
</body>
</html>
`

var resultTmpl = template.Must(template.New("result").Funcs(template.FuncMap{
	"points":  func(f float64) string { return fmt.Sprintf("%.2f", f) },
	"percent": func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
	"answer":  formatAnswer,
}).Parse(resultHTML))

// RenderResult renders the result mail of view.
func RenderResult(view *model.ResultView) (Message, error) {
	var buf bytes.Buffer
	if err := resultTmpl.Execute(&buf, view); err != nil {
		return Message{}, fmt.Errorf("render result: %w", err)
	}
	return Message{
		To:      view.User.Email,
		Subject: fmt.Sprintf("Your results for %s", view.Test.Name),
		HTML:    buf.String(),
	}, nil
}

func formatAnswer(v any) string {
	switch a := v.(type) {
	case *string:
		if a != nil {
			return *a
		}
	case *bool:
		if a != nil {
			if *a {
				return "yes"
			}
			return "no"
		}
	case *int:
		if a != nil {
			return fmt.Sprintf("%d", *a)
		}
	case []uuid.UUID:
		ids := make([]string, len(a))
		for i, id := range a {
			ids[i] = id.String()
		}
		return strings.Join(ids, ", ")
	}
	return "-"
}

package notifier

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"

	"surveyrelay/internal/messaging"
)

const subjectPrefix = "Nuevo Lead Calificado de WhatsApp: "

var emailTemplate = template.Must(template.New("survey").Parse(`<h1>🚀 Nuevo Lead Calificado de WhatsApp</h1>
<p><strong>Teléfono del Cliente:</strong> {{.CustomerPhone}}</p>
<hr>
<h2>Resultados de la Encuesta:</h2>
<ul>{{range .Items}}
<li><strong>{{.Label}}:</strong> {{.Value}}{{if .MapURL}} (<a href="{{.MapURL}}">ver mapa</a>){{end}}</li>{{end}}
</ul>
<p><em>Este es un mensaje automático. Por favor, contactar al cliente a la brevedad.</em></p>
`))

type emailItem struct {
	Label  string
	Value  string
	MapURL string
}

type emailData struct {
	CustomerPhone string
	Items         []emailItem
}

func subject(customerPhone string) string {
	return subjectPrefix + customerPhone
}

func renderBody(customerPhone string, response messaging.SurveyResponse) (string, error) {
	keys := make([]string, 0, len(response))
	for k := range response {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := emailData{CustomerPhone: customerPhone, Items: make([]emailItem, 0, len(keys))}
	for _, k := range keys {
		data.Items = append(data.Items, newItem(k, response[k]))
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render survey email: %w", err)
	}
	return buf.String(), nil
}

func newItem(key string, value interface{}) emailItem {
	item := emailItem{Label: humanize(key)}

	switch v := value.(type) {
	case messaging.Location:
		lat := formatFloat(v.Latitude)
		lng := formatFloat(v.Longitude)
		item.Value = lat + ", " + lng
		item.MapURL = "https://www.google.com/maps?q=" + lat + "," + lng
	case float64:
		item.Value = formatFloat(v)
	case string:
		item.Value = v
	default:
		item.Value = fmt.Sprint(v)
	}
	return item
}

// humanize turns have_fiber into "Have fiber".
func humanize(key string) string {
	label := strings.ReplaceAll(key, "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

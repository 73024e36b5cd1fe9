package booking

// FieldName is the logical name of an applicant field, independent of the
// label the booking page shows for it.
type FieldName string

const (
	FieldSurname   FieldName = "surname"
	FieldGivenName FieldName = "given_name"
	FieldBirthdate FieldName = "birthdate"
	FieldPhone     FieldName = "phone"
	FieldEmail     FieldName = "email"
)

// Field is one applicant value together with the label the page is expected
// to show next to its input.
type Field struct {
	Name  FieldName
	Label string
	Value string
}

// labelSynonyms lists alternative label texts seen on different renderings
// of the booking form.
var labelSynonyms = map[FieldName][]string{
	FieldPhone: {"Tel.", "Rufnummer"},
	FieldEmail: {"Email", "E-Mail"},
}

// CandidateLabels returns the canonical label followed by its synonyms,
// without duplicates.
func (f Field) CandidateLabels() []string {
	out := []string{f.Label}
	seen := map[string]bool{f.Label: true}
	for _, s := range labelSynonyms[f.Name] {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Profile is the ordered, read-only set of applicant fields.
type Profile struct {
	fields []Field
}

func NewProfile(surname, givenName, birthdate, phone, email string) Profile {
	return Profile{fields: []Field{
		{Name: FieldSurname, Label: "Nachname", Value: surname},
		{Name: FieldGivenName, Label: "Vorname", Value: givenName},
		{Name: FieldBirthdate, Label: "Geburtsdatum", Value: birthdate},
		{Name: FieldPhone, Label: "Telefonnummer", Value: phone},
		{Name: FieldEmail, Label: "E-Mail", Value: email},
	}}
}

// Fields returns a copy of the fields in fill order.
func (p Profile) Fields() []Field {
	out := make([]Field, len(p.fields))
	copy(out, p.fields)
	return out
}

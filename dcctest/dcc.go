package dcctest

// DCC is a version 1 health certificate as it is placed under claim -260/1. Only the
// fields used by fixtures are modelled.
type DCC struct {
	Version     string `cbor:"ver" json:"ver"`
	DateOfBirth string `cbor:"dob" json:"dob"`

	Name         *DCCName          `cbor:"nam" json:"nam"`
	Vaccinations []*DCCVaccination `cbor:"v,omitempty" json:"v,omitempty"`
	Tests        []*DCCTest        `cbor:"t,omitempty" json:"t,omitempty"`
	Recoveries   []*DCCRecovery    `cbor:"r,omitempty" json:"r,omitempty"`
}

type DCCName struct {
	FamilyName             string `cbor:"fn" json:"fn"`
	StandardizedFamilyName string `cbor:"fnt" json:"fnt"`
	GivenName              string `cbor:"gn" json:"gn"`
	StandardizedGivenName  string `cbor:"gnt" json:"gnt"`
}

type DCCVaccination struct {
	DiseaseTargeted       string `cbor:"tg" json:"tg"`
	Vaccine               string `cbor:"vp" json:"vp"`
	MedicinalProduct      string `cbor:"mp" json:"mp"`
	Manufacturer          string `cbor:"ma" json:"ma"`
	DoseNumber            int    `cbor:"dn" json:"dn"`
	TotalSeriesOfDoses    int    `cbor:"sd" json:"sd"`
	DateOfVaccination     string `cbor:"dt" json:"dt"`
	CountryOfVaccination  string `cbor:"co" json:"co"`
	CertificateIssuer     string `cbor:"is" json:"is"`
	CertificateIdentifier string `cbor:"ci" json:"ci"`
}

type DCCTest struct {
	DiseaseTargeted       string `cbor:"tg" json:"tg"`
	TypeOfTest            string `cbor:"tt" json:"tt"`
	TestName              string `cbor:"nm,omitempty" json:"nm,omitempty"`
	Manufacturer          string `cbor:"ma,omitempty" json:"ma,omitempty"`
	DateTimeOfCollection  string `cbor:"sc" json:"sc"`
	TestResult            string `cbor:"tr" json:"tr"`
	TestingCentre         string `cbor:"tc" json:"tc"`
	CountryOfTest         string `cbor:"co" json:"co"`
	CertificateIssuer     string `cbor:"is" json:"is"`
	CertificateIdentifier string `cbor:"ci" json:"ci"`
}

type DCCRecovery struct {
	DiseaseTargeted         string `cbor:"tg" json:"tg"`
	DateOfFirstPositiveTest string `cbor:"fr" json:"fr"`
	CountryOfTest           string `cbor:"co" json:"co"`
	CertificateIssuer       string `cbor:"is" json:"is"`
	CertificateValidFrom    string `cbor:"df" json:"df"`
	CertificateValidUntil   string `cbor:"du" json:"du"`
	CertificateIdentifier   string `cbor:"ci" json:"ci"`
}

// VaccinationDCC returns a completed two-dose vaccination certificate
func VaccinationDCC() *DCC {
	return &DCC{
		Version:     "1.3.0",
		DateOfBirth: "1970-01-01",
		Name: &DCCName{
			FamilyName:             "De Vries",
			StandardizedFamilyName: "DE<VRIES",
			GivenName:              "Jan",
			StandardizedGivenName:  "JAN",
		},
		Vaccinations: []*DCCVaccination{
			{
				DiseaseTargeted:       "840539006",
				Vaccine:               "1119349007",
				MedicinalProduct:      "EU/1/20/1528",
				Manufacturer:          "ORG-100030215",
				DoseNumber:            2,
				TotalSeriesOfDoses:    2,
				DateOfVaccination:     "2021-06-01",
				CountryOfVaccination:  "NL",
				CertificateIssuer:     "Ministry of Health Welfare and Sport",
				CertificateIdentifier: "URN:UVCI:01:NL:DADFCC47C7334E45A906DB12FD859FB7#1",
			},
		},
	}
}

// TestDCC returns a negative NAA test certificate
func TestDCC() *DCC {
	return &DCC{
		Version:     "1.3.0",
		DateOfBirth: "1985-12-31",
		Name: &DCCName{
			FamilyName:             "Jansen",
			StandardizedFamilyName: "JANSEN",
			GivenName:              "Anna",
			StandardizedGivenName:  "ANNA",
		},
		Tests: []*DCCTest{
			{
				DiseaseTargeted:       "840539006",
				TypeOfTest:            "LP6464-4",
				TestName:              "SARS-CoV-2 PCR",
				DateTimeOfCollection:  "2021-07-01T10:00:00Z",
				TestResult:            "260415000",
				TestingCentre:         "GGD Amsterdam",
				CountryOfTest:         "NL",
				CertificateIssuer:     "Ministry of Health Welfare and Sport",
				CertificateIdentifier: "URN:UVCI:01:NL:GGD/81AAH16AZ",
			},
		},
	}
}

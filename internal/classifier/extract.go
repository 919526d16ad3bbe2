// internal/classifier/extract.go
package classifier

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"chatpay-wallet/internal/security"
)

var (
	currencyAmountRe = regexp.MustCompile(`\br\s*(\d+(?:\.\d{1,2})?)\b`)
	randAmountRe     = regexp.MustCompile(`\b(\d+(?:\.\d{1,2})?)\s*rand\b`)
	bareAmountRe     = regexp.MustCompile(`\b(\d+(?:\.\d{1,2})?)\b`)

	intlPhoneRe  = regexp.MustCompile(`\+27\d{9}\b`)
	localPhoneRe = regexp.MustCompile(`\b0\d{9}\b`)
	meterRe      = regexp.MustCompile(`\b\d{11}\b`)
	bundleRe     = regexp.MustCompile(`\b(\d+)\s*(gb|mb)\b`)
)

// Network names as stored on transactions and beneficiaries.
const (
	NetworkMTN     = "mtn"
	NetworkVodacom = "vodacom"
	NetworkCellC   = "cell c"
	NetworkTelkom  = "telkom"
)

var networkKeywords = []struct {
	network  string
	keywords []string
}{
	{NetworkMTN, []string{"mtn"}},
	{NetworkVodacom, []string{"vodacom", "voda"}},
	{NetworkCellC, []string{"cell c", "cellc", "cell-c"}},
	{NetworkTelkom, []string{"telkom"}},
}

// Number portability means a prefix only says which network issued the
// number, so inference is a best-effort default the user can override by
// naming the network.
var networkPrefixes = map[string]string{
	"082": NetworkVodacom, "072": NetworkVodacom, "076": NetworkVodacom, "079": NetworkVodacom,
	"071": NetworkVodacom, "060": NetworkVodacom, "066": NetworkVodacom,
	"083": NetworkMTN, "073": NetworkMTN, "078": NetworkMTN, "063": NetworkMTN,
	"084": NetworkCellC, "074": NetworkCellC, "061": NetworkCellC, "062": NetworkCellC,
	"081": NetworkTelkom, "065": NetworkTelkom, "067": NetworkTelkom,
}

// ExtractPhone finds a South African mobile number and returns it as +27XXXXXXXXX.
func ExtractPhone(text string) string {
	if m := intlPhoneRe.FindString(text); m != "" {
		return m
	}
	if m := localPhoneRe.FindString(text); m != "" {
		if phone, err := security.ValidatePhone(m); err == nil {
			return phone
		}
	}
	return ""
}

// ExtractMeter finds an 11 digit prepaid meter number.
func ExtractMeter(text string) string {
	return meterRe.FindString(text)
}

// ExtractAmount finds a rand amount. Phone and meter numbers are removed
// first so their digits are never read as an amount.
func ExtractAmount(text string) decimal.NullDecimal {
	msg := strings.ToLower(text)
	msg = intlPhoneRe.ReplaceAllString(msg, " ")
	msg = localPhoneRe.ReplaceAllString(msg, " ")
	msg = meterRe.ReplaceAllString(msg, " ")

	for _, re := range []*regexp.Regexp{currencyAmountRe, randAmountRe, bareAmountRe} {
		if m := re.FindStringSubmatch(msg); m != nil {
			if d, err := decimal.NewFromString(m[1]); err == nil {
				return decimal.NewNullDecimal(d)
			}
		}
	}
	return decimal.NullDecimal{}
}

// ExtractNetwork returns the network named in text, or "".
func ExtractNetwork(text string) string {
	msg := strings.ToLower(text)
	for _, n := range networkKeywords {
		if containsAny(msg, n.keywords...) {
			return n.network
		}
	}
	return ""
}

// InferNetwork guesses the issuing network from a +27 or 0-prefixed number.
func InferNetwork(phone string) string {
	local := security.LocalFormat(phone)
	if len(local) < 3 {
		return ""
	}
	return networkPrefixes[local[:3]]
}

// ExtractBundle returns a data bundle size such as "2gb", or "".
func ExtractBundle(text string) string {
	m := bundleRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return ""
	}
	return m[1] + m[2]
}

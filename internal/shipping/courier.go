package shipping

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"gift-marketplace/internal/logger"
)

// Zone is one deliverable area as reported by the courier directory.
type Zone struct {
	Code        string
	Name        string
	CountryCode string
}

// TrackingEvent is the most recent status of a consignment.
type TrackingEvent struct {
	Status   string
	Location string
	Date     string
}

// ConsignmentRequest describes a shipment to be booked with the courier.
type ConsignmentRequest struct {
	Reference     string
	RecipientName string
	Street        string
	City          string
	WeightKg      float64
	Pieces        int
}

// Consignment is the courier's booking confirmation.
type Consignment struct {
	TrackingNumber string
	TrackingURL    string
}

// CourierClient talks to the courier's legacy SOAP API. Responses are not
// valid against any published schema, so fields are pulled out with tag
// regexes instead of a full XML decode.
type CourierClient struct {
	BaseURL   string
	AccountNo string
	APIKey    string
	HTTP      *http.Client
	Logger    *logger.Logger
}

func NewCourierClient(baseURL, accountNo, apiKey string, httpClient *http.Client, log *logger.Logger) *CourierClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CourierClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		AccountNo: accountNo,
		APIKey:    apiKey,
		HTTP:      httpClient,
		Logger:    log,
	}
}

var (
	rateRe     = regexp.MustCompile(`<(?:\w+:)?TotalCharge>([^<]+)</(?:\w+:)?TotalCharge>`)
	zoneRe     = regexp.MustCompile(`<(?:\w+:)?Zone>\s*<(?:\w+:)?Code>([^<]+)</(?:\w+:)?Code>\s*<(?:\w+:)?Name>([^<]+)</(?:\w+:)?Name>\s*<(?:\w+:)?Country>([^<]+)</(?:\w+:)?Country>\s*</(?:\w+:)?Zone>`)
	statusRe   = regexp.MustCompile(`<(?:\w+:)?Status>([^<]+)</(?:\w+:)?Status>`)
	locationRe = regexp.MustCompile(`<(?:\w+:)?Location>([^<]+)</(?:\w+:)?Location>`)
	dateRe     = regexp.MustCompile(`<(?:\w+:)?EventDate>([^<]+)</(?:\w+:)?EventDate>`)
	faultRe    = regexp.MustCompile(`<(?:\w+:)?faultstring>([^<]+)</(?:\w+:)?faultstring>`)
	consignRe  = regexp.MustCompile(`<(?:\w+:)?ConsignmentNo>([^<]+)</(?:\w+:)?ConsignmentNo>`)
	trackURLRe = regexp.MustCompile(`<(?:\w+:)?TrackingURL>([^<]+)</(?:\w+:)?TrackingURL>`)
)

// Rate returns the delivery charge for a consignment to a zone.
func (c *CourierClient) Rate(ctx context.Context, zoneCode string, weightKg float64, pieces int) (float64, error) {
	envelope := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <GetRate xmlns="http://courier.example.com/">
      <AccountNo>%s</AccountNo>
      <ApiKey>%s</ApiKey>
      <ZoneCode>%s</ZoneCode>
      <Weight>%.3f</Weight>
      <Pieces>%d</Pieces>
    </GetRate>
  </soap:Body>
</soap:Envelope>`, c.AccountNo, c.APIKey, zoneCode, weightKg, pieces)

	body, err := c.call(ctx, "GetRate", envelope)
	if err != nil {
		return 0, err
	}

	m := rateRe.FindStringSubmatch(body)
	if m == nil {
		return 0, fmt.Errorf("courier rate response has no TotalCharge for zone %s", zoneCode)
	}
	rate, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64)
	if err != nil {
		return 0, fmt.Errorf("courier returned unparsable charge %q: %w", m[1], err)
	}
	return rate, nil
}

// Zones fetches the courier's full deliverable-zone directory.
func (c *CourierClient) Zones(ctx context.Context) ([]Zone, error) {
	envelope := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <GetZones xmlns="http://courier.example.com/">
      <AccountNo>%s</AccountNo>
      <ApiKey>%s</ApiKey>
    </GetZones>
  </soap:Body>
</soap:Envelope>`, c.AccountNo, c.APIKey)

	body, err := c.call(ctx, "GetZones", envelope)
	if err != nil {
		return nil, err
	}

	matches := zoneRe.FindAllStringSubmatch(body, -1)
	zones := make([]Zone, 0, len(matches))
	for _, m := range matches {
		zones = append(zones, Zone{
			Code:        strings.TrimSpace(m[1]),
			Name:        strings.TrimSpace(m[2]),
			CountryCode: strings.TrimSpace(m[3]),
		})
	}
	if len(zones) == 0 {
		return nil, fmt.Errorf("courier zone directory came back empty")
	}
	return zones, nil
}

// CreateShipment books a consignment with the courier and returns the
// assigned tracking number.
func (c *CourierClient) CreateShipment(ctx context.Context, req ConsignmentRequest) (*Consignment, error) {
	envelope := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <CreateShipment xmlns="http://courier.example.com/">
      <AccountNo>%s</AccountNo>
      <ApiKey>%s</ApiKey>
      <Reference>%s</Reference>
      <RecipientName>%s</RecipientName>
      <Street>%s</Street>
      <City>%s</City>
      <Weight>%.3f</Weight>
      <Pieces>%d</Pieces>
    </CreateShipment>
  </soap:Body>
</soap:Envelope>`, c.AccountNo, c.APIKey, req.Reference, req.RecipientName, req.Street, req.City, req.WeightKg, req.Pieces)

	body, err := c.call(ctx, "CreateShipment", envelope)
	if err != nil {
		return nil, err
	}

	m := consignRe.FindStringSubmatch(body)
	if m == nil {
		return nil, fmt.Errorf("courier booking response has no ConsignmentNo for reference %s", req.Reference)
	}
	consignment := &Consignment{TrackingNumber: strings.TrimSpace(m[1])}
	if u := trackURLRe.FindStringSubmatch(body); u != nil {
		consignment.TrackingURL = strings.TrimSpace(u[1])
	}
	return consignment, nil
}

// Track returns the latest tracking event for a consignment number.
func (c *CourierClient) Track(ctx context.Context, trackingNumber string) (*TrackingEvent, error) {
	envelope := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <TrackShipment xmlns="http://courier.example.com/">
      <AccountNo>%s</AccountNo>
      <ApiKey>%s</ApiKey>
      <ConsignmentNo>%s</ConsignmentNo>
    </TrackShipment>
  </soap:Body>
</soap:Envelope>`, c.AccountNo, c.APIKey, trackingNumber)

	body, err := c.call(ctx, "TrackShipment", envelope)
	if err != nil {
		return nil, err
	}

	status := statusRe.FindStringSubmatch(body)
	if status == nil {
		return nil, fmt.Errorf("courier tracking response has no status for %s", trackingNumber)
	}
	event := &TrackingEvent{Status: strings.TrimSpace(status[1])}
	if m := locationRe.FindStringSubmatch(body); m != nil {
		event.Location = strings.TrimSpace(m[1])
	}
	if m := dateRe.FindStringSubmatch(body); m != nil {
		event.Date = strings.TrimSpace(m[1])
	}
	return event, nil
}

func (c *CourierClient) call(ctx context.Context, action, envelope string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/soap", strings.NewReader(envelope))
	if err != nil {
		return "", fmt.Errorf("failed to build courier request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", fmt.Sprintf("http://courier.example.com/%s", action))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("courier request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read courier response: %w", err)
	}
	body := string(raw)

	if m := faultRe.FindStringSubmatch(body); m != nil {
		return "", fmt.Errorf("courier fault: %s", strings.TrimSpace(m[1]))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("courier returned status %d", resp.StatusCode)
	}
	if c.Logger != nil {
		c.Logger.Debug("COURIER", fmt.Sprintf("%s completed (%d bytes)", action, len(body)))
	}
	return body, nil
}

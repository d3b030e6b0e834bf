package shipping_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"gift-marketplace/internal/shipping"
)

func soapServer(t *testing.T, respond func(action, body string) (int, string)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/soap", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "text/xml")

		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		action := strings.TrimPrefix(r.Header.Get("SOAPAction"), "http://courier.example.com/")
		status, body := respond(action, string(raw))
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestRate_ExtractsTotalCharge(t *testing.T) {
	server := soapServer(t, func(action, body string) (int, string) {
		assert.Equal(t, "GetRate", action)
		assert.Contains(t, body, "<ZoneCode>Z-SPR</ZoneCode>")
		assert.Contains(t, body, "<Weight>3.000</Weight>")
		assert.Contains(t, body, "<Pieces>2</Pieces>")
		return http.StatusOK, `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <GetRateResponse>
      <ns:TotalCharge>12.50</ns:TotalCharge>
    </GetRateResponse>
  </soap:Body>
</soap:Envelope>`
	})
	defer server.Close()

	client := shipping.NewCourierClient(server.URL, "acct-1", "key-1", server.Client(), nil)
	rate, err := client.Rate(context.Background(), "Z-SPR", 3.0, 2)

	assert.NoError(t, err)
	assert.Equal(t, 12.50, rate)
}

func TestRate_MissingChargeIsAnError(t *testing.T) {
	server := soapServer(t, func(action, body string) (int, string) {
		return http.StatusOK, `<soap:Envelope><soap:Body><GetRateResponse/></soap:Body></soap:Envelope>`
	})
	defer server.Close()

	client := shipping.NewCourierClient(server.URL, "acct-1", "key-1", server.Client(), nil)
	_, err := client.Rate(context.Background(), "Z-SPR", 3.0, 2)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TotalCharge")
}

func TestRate_SoapFaultSurfacesFaultString(t *testing.T) {
	server := soapServer(t, func(action, body string) (int, string) {
		return http.StatusInternalServerError, `<soap:Envelope><soap:Body><soap:Fault>
  <soap:faultstring>Invalid account number</soap:faultstring>
</soap:Fault></soap:Body></soap:Envelope>`
	})
	defer server.Close()

	client := shipping.NewCourierClient(server.URL, "acct-1", "key-1", server.Client(), nil)
	_, err := client.Rate(context.Background(), "Z-SPR", 3.0, 2)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid account number")
}

func TestZones_ParsesDirectory(t *testing.T) {
	server := soapServer(t, func(action, body string) (int, string) {
		assert.Equal(t, "GetZones", action)
		return http.StatusOK, `<soap:Envelope><soap:Body><GetZonesResponse>
  <ns:Zone>
    <ns:Code>Z-SPR</ns:Code>
    <ns:Name>Springfield</ns:Name>
    <ns:Country>US</ns:Country>
  </ns:Zone>
  <ns:Zone>
    <ns:Code>Z-SHB</ns:Code>
    <ns:Name>Shelbyville</ns:Name>
    <ns:Country>US</ns:Country>
  </ns:Zone>
</GetZonesResponse></soap:Body></soap:Envelope>`
	})
	defer server.Close()

	client := shipping.NewCourierClient(server.URL, "acct-1", "key-1", server.Client(), nil)
	zones, err := client.Zones(context.Background())

	assert.NoError(t, err)
	assert.Len(t, zones, 2)
	assert.Equal(t, shipping.Zone{Code: "Z-SPR", Name: "Springfield", CountryCode: "US"}, zones[0])
	assert.Equal(t, "Shelbyville", zones[1].Name)
}

func TestZones_EmptyDirectoryIsAnError(t *testing.T) {
	server := soapServer(t, func(action, body string) (int, string) {
		return http.StatusOK, `<soap:Envelope><soap:Body><GetZonesResponse/></soap:Body></soap:Envelope>`
	})
	defer server.Close()

	client := shipping.NewCourierClient(server.URL, "acct-1", "key-1", server.Client(), nil)
	_, err := client.Zones(context.Background())

	assert.Error(t, err)
}

func TestCreateShipment_ExtractsConsignment(t *testing.T) {
	server := soapServer(t, func(action, body string) (int, string) {
		assert.Equal(t, "CreateShipment", action)
		assert.Contains(t, body, "<Reference>GM-ABCD1234</Reference>")
		assert.Contains(t, body, "<RecipientName>Jamie Buyer</RecipientName>")
		assert.Contains(t, body, "<City>Springfield</City>")
		assert.Contains(t, body, "<Weight>3.000</Weight>")
		assert.Contains(t, body, "<Pieces>2</Pieces>")
		return http.StatusOK, `<soap:Envelope><soap:Body><CreateShipmentResponse>
  <ns:ConsignmentNo>CN-1001</ns:ConsignmentNo>
  <ns:TrackingURL>https://courier.example.com/t/CN-1001</ns:TrackingURL>
</CreateShipmentResponse></soap:Body></soap:Envelope>`
	})
	defer server.Close()

	client := shipping.NewCourierClient(server.URL, "acct-1", "key-1", server.Client(), nil)
	consignment, err := client.CreateShipment(context.Background(), shipping.ConsignmentRequest{
		Reference:     "GM-ABCD1234",
		RecipientName: "Jamie Buyer",
		Street:        "12 Elm St",
		City:          "Springfield",
		WeightKg:      3.0,
		Pieces:        2,
	})

	assert.NoError(t, err)
	assert.Equal(t, "CN-1001", consignment.TrackingNumber)
	assert.Equal(t, "https://courier.example.com/t/CN-1001", consignment.TrackingURL)
}

func TestCreateShipment_MissingConsignmentNoIsAnError(t *testing.T) {
	server := soapServer(t, func(action, body string) (int, string) {
		return http.StatusOK, `<soap:Envelope><soap:Body><CreateShipmentResponse/></soap:Body></soap:Envelope>`
	})
	defer server.Close()

	client := shipping.NewCourierClient(server.URL, "acct-1", "key-1", server.Client(), nil)
	_, err := client.CreateShipment(context.Background(), shipping.ConsignmentRequest{Reference: "GM-ABCD1234"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ConsignmentNo")
}

func TestTrack_ExtractsLatestEvent(t *testing.T) {
	server := soapServer(t, func(action, body string) (int, string) {
		assert.Equal(t, "TrackShipment", action)
		assert.Contains(t, body, "<ConsignmentNo>CN-1001</ConsignmentNo>")
		return http.StatusOK, `<soap:Envelope><soap:Body><TrackShipmentResponse>
  <ns:Status>In Transit</ns:Status>
  <ns:Location>Springfield Hub</ns:Location>
  <ns:EventDate>2026-08-30</ns:EventDate>
</TrackShipmentResponse></soap:Body></soap:Envelope>`
	})
	defer server.Close()

	client := shipping.NewCourierClient(server.URL, "acct-1", "key-1", server.Client(), nil)
	event, err := client.Track(context.Background(), "CN-1001")

	assert.NoError(t, err)
	assert.Equal(t, "In Transit", event.Status)
	assert.Equal(t, "Springfield Hub", event.Location)
	assert.Equal(t, "2026-08-30", event.Date)
}

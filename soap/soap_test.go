package soap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dougn/testtrackpro/api"
)

type fakeResolver struct {
	types map[string]api.TypeDescriptor
	ops   map[string]api.Operation
}

func (r fakeResolver) ResolveType(name string) (api.TypeDescriptor, bool) {
	d, ok := r.types[name]
	return d, ok
}

func (r fakeResolver) Operation(name string) (api.Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

func testResolver() fakeResolver {
	return fakeResolver{
		types: map[string]api.TypeDescriptor{
			"CEvent": {Name: "CEvent", Fields: []api.FieldDescriptor{
				{Name: "recordid", Type: "long"},
				{Name: "name", Type: "string"},
			}},
			"CFixEvent": {Name: "CFixEvent", Base: "CEvent", Fields: []api.FieldDescriptor{
				{Name: "resolution", Type: "string"},
			}},
			"CCommentEvent": {Name: "CCommentEvent", Base: "CEvent", Fields: []api.FieldDescriptor{
				{Name: "comment", Type: "string"},
			}},
			"ArrayOfCEvent": {Name: "ArrayOfCEvent", Elem: "CEvent"},
			"CDefect": {Name: "CDefect", Fields: []api.FieldDescriptor{
				{Name: "recordid", Type: "long"},
				{Name: "summary", Type: "string"},
				{Name: "eventlist", Type: "ArrayOfCEvent"},
			}},
		},
		ops: map[string]api.Operation{
			"getDefect": {
				Name:   "getDefect",
				Params: []api.Param{{Name: "cookie", Type: "long"}, {Name: "recordid", Type: "long"}},
				Result: "CDefect",
			},
			"saveDefect": {
				Name:   "saveDefect",
				Params: []api.Param{{Name: "cookie", Type: "long"}, {Name: "pDefect", Type: "CDefect"}},
			},
		},
	}
}

func TestEncodeRequestUsesDeclaredParamNames(t *testing.T) {
	tr := New("http://example.invalid/ttsoapcgi.exe", testResolver())
	body, err := tr.encodeRequest("getDefect", []any{int64(31337), int64(42)})
	if err != nil {
		t.Fatalf("encodeRequest: %v", err)
	}
	env := string(body)
	for _, want := range []string{
		"<ns1:getDefect>",
		`<cookie xsi:type="xsd:long">31337</cookie>`,
		`<recordid xsi:type="xsd:long">42</recordid>`,
	} {
		if !strings.Contains(env, want) {
			t.Errorf("envelope missing %q:\n%s", want, env)
		}
	}
}

func TestEncodeEntityFieldsInSchemaOrder(t *testing.T) {
	tr := New("http://example.invalid/ttsoapcgi.exe", testResolver())
	defect := api.NewEntity("CDefect")
	defect.Set("summary", "crash on save")
	defect.SetRecordID(42)
	body, err := tr.encodeRequest("saveDefect", []any{int64(1), defect})
	if err != nil {
		t.Fatalf("encodeRequest: %v", err)
	}
	env := string(body)
	rid := strings.Index(env, "<recordid")
	sum := strings.Index(env, "<summary")
	if rid < 0 || sum < 0 || rid > sum {
		t.Fatalf("fields out of schema order:\n%s", env)
	}
	if !strings.Contains(env, `<pDefect xsi:type="ns1:CDefect">`) {
		t.Fatalf("entity xsi:type missing:\n%s", env)
	}
}

func TestEncodeNilArgument(t *testing.T) {
	tr := New("http://example.invalid/ttsoapcgi.exe", testResolver())
	body, err := tr.encodeRequest("getDefect", []any{nil, int64(42)})
	if err != nil {
		t.Fatalf("encodeRequest: %v", err)
	}
	if !strings.Contains(string(body), `<cookie xsi:nil="true"/>`) {
		t.Fatalf("nil cookie not encoded as xsi:nil:\n%s", body)
	}
}

func TestRetagPolymorphicArrayElements(t *testing.T) {
	tr := New("http://example.invalid/ttsoapcgi.exe", testResolver())
	events := api.NewArray("ArrayOfCEvent", "CEvent")
	fix := api.NewEntity("CFixEvent")
	fix.Set("resolution", "fixed")
	comment := api.NewEntity("CCommentEvent")
	comment.Set("comment", "works for me")
	base := api.NewEntity("CEvent")
	base.Set("name", "triage")
	events.Append(fix, comment, base)
	defect := api.NewEntity("CDefect")
	defect.Set("eventlist", events)
	body, err := tr.encodeRequest("saveDefect", []any{int64(1), defect})
	if err != nil {
		t.Fatalf("encodeRequest: %v", err)
	}
	env := string(body)
	for _, want := range []string{
		`SOAP-ENC:arrayType="ns1:CEvent[3]"`,
		`<item xsi:type="ns1:CFixEvent">`,
		`<item xsi:type="ns1:CCommentEvent">`,
		`<item xsi:type="ns1:CEvent">`,
	} {
		if !strings.Contains(env, want) {
			t.Errorf("envelope missing %q:\n%s", want, env)
		}
	}
	// The array's own declared element type stays CEvent.
	if events.ElemType != "CEvent" {
		t.Fatalf("array element type mutated to %q", events.ElemType)
	}
}

func TestRetagPromotesFieldMapLiterals(t *testing.T) {
	events := api.NewArray("ArrayOfCEvent", "CEvent")
	events.Append(map[string]any{"name": "triage"})
	items, err := retagItems(events, testResolver())
	if err != nil {
		t.Fatalf("retagItems: %v", err)
	}
	e, ok := items[0].value.(*api.Entity)
	if !ok || e.TypeName != "CEvent" || e.GetString("name") != "triage" {
		t.Fatalf("literal not promoted: %+v", items[0])
	}
	if items[0].tag != "CEvent" {
		t.Fatalf("tag = %q, want the declared element type", items[0].tag)
	}
}

func TestRetagUnknownConcreteTypeIsFatal(t *testing.T) {
	events := api.NewArray("ArrayOfCEvent", "CEvent")
	events.Append(api.NewEntity("CUnknownEvent"))
	_, err := retagItems(events, testResolver())
	var tre *api.TypeResolutionError
	if !errors.As(err, &tre) || tre.TypeName != "CUnknownEvent" {
		t.Fatalf("err = %v, want TypeResolutionError for the concrete type", err)
	}
}

func TestRetagUnknownDeclaredTypeIsFatal(t *testing.T) {
	events := api.NewArray("ArrayOfBogus", "CBogus")
	_, err := retagItems(events, testResolver())
	var tre *api.TypeResolutionError
	if !errors.As(err, &tre) {
		t.Fatalf("err = %v, want TypeResolutionError", err)
	}
}

const defectResponse = `<?xml version="1.0"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/"
    xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
    xmlns:xsd="http://www.w3.org/2001/XMLSchema"
    xmlns:ns1="urn:TestTrack">
  <SOAP-ENV:Body>
    <ns1:getDefectResponse>
      <pDefect xsi:type="ns1:CDefect">
        <recordid xsi:type="xsd:long">42</recordid>
        <summary xsi:type="xsd:string">crash on save</summary>
        <eventlist xsi:type="SOAP-ENC:Array"
            xmlns:SOAP-ENC="http://schemas.xmlsoap.org/soap/encoding/"
            SOAP-ENC:arrayType="ns1:CEvent[2]">
          <item xsi:type="ns1:CFixEvent">
            <name xsi:type="xsd:string">fix</name>
            <resolution xsi:type="xsd:string">fixed</resolution>
          </item>
          <item xsi:type="ns1:CEvent">
            <name xsi:type="xsd:string">triage</name>
          </item>
        </eventlist>
      </pDefect>
    </ns1:getDefectResponse>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

func TestCallRoundTrip(t *testing.T) {
	var gotAction string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.Header.Get("SOAPAction")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "text/xml")
		io.WriteString(w, defectResponse)
	}))
	defer srv.Close()
	tr := New(srv.URL, testResolver())
	result, err := tr.Call(context.Background(), "getDefect", []any{int64(31337), int64(42)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if gotAction != `"getDefect"` {
		t.Fatalf("SOAPAction = %q", gotAction)
	}
	if !strings.Contains(gotBody, "<ns1:getDefect>") {
		t.Fatalf("request body missing operation element:\n%s", gotBody)
	}
	defect, ok := result.(*api.Entity)
	if !ok {
		t.Fatalf("result = %T, want *api.Entity", result)
	}
	if defect.TypeName != "CDefect" || defect.RecordID() != 42 {
		t.Fatalf("defect = %+v", defect)
	}
	events, ok := defect.Get("eventlist").(*api.Array)
	if !ok || events.Len() != 2 {
		t.Fatalf("eventlist = %+v", defect.Get("eventlist"))
	}
	fix, ok := events.Items[0].(*api.Entity)
	if !ok || fix.TypeName != "CFixEvent" || fix.GetString("resolution") != "fixed" {
		t.Fatalf("first event = %+v, want the concrete subtype preserved", events.Items[0])
	}
}

const faultResponse = `<?xml version="1.0"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">
  <SOAP-ENV:Body>
    <SOAP-ENV:Fault>
      <faultcode>SOAP-ENV:Server</faultcode>
      <faultstring>This record is locked for editing by user alice.</faultstring>
      <detail>22</detail>
    </SOAP-ENV:Fault>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

func TestCallDecodesFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, faultResponse)
	}))
	defer srv.Close()
	tr := New(srv.URL, testResolver())
	_, err := tr.Call(context.Background(), "editDefect", []any{int64(1), int64(42)})
	var fault *api.Fault
	if !errors.As(err, &fault) {
		t.Fatalf("err = %v, want *api.Fault", err)
	}
	if fault.Code != api.EditLockHeldCode || fault.Op != "editDefect" {
		t.Fatalf("fault = %+v", fault)
	}
	if !api.IsEditLockHeld(err) {
		t.Fatal("edit-lock fault not recognized")
	}
}

func TestCallUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	tr := New(srv.URL, testResolver())
	_, err := tr.Call(context.Background(), "getDefect", []any{int64(1), int64(42)})
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "getDefect" {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

const voidResponse = `<?xml version="1.0"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">
  <SOAP-ENV:Body>
    <ns1:saveDefectResponse xmlns:ns1="urn:TestTrack"/>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

func TestCallVoidResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		io.WriteString(w, voidResponse)
	}))
	defer srv.Close()
	tr := New(srv.URL, testResolver())
	result, err := tr.Call(context.Background(), "saveDefect", []any{int64(1), api.NewEntity("CDefect")})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != nil {
		t.Fatalf("result = %v, want nil for a void operation", result)
	}
}

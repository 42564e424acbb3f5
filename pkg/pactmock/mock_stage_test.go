package pactmock_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pact-foundation/pact-go/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/form3tech-oss/pact-mock/pkg/pactmock"
)

const (
	dogInteraction  = "a request to get a dog with binary data"
	ageInteraction  = "a request to create a dog of any age"
	catInteraction  = "a request for cats"
	fileInteraction = "a request to upload a file"
)

type MockStage struct {
	t              *testing.T
	assert         *assert.Assertions
	require        *require.Assertions
	mock           *pactmock.Mock
	pact           *pactmock.Pact
	port           int
	pactDir        string
	pactPath       string
	dogBody        []byte
	responses      []*http.Response
	responseBodies [][]byte
	waitResult     error
}

func NewMockStage(t *testing.T) (*MockStage, *MockStage, *MockStage) {
	p, err := pactmock.NewPact("foo-consumer", "bar-provider", pactmock.V3)
	require.NoError(t, err)

	s := &MockStage{
		t:       t,
		assert:  assert.New(t),
		require: require.New(t),
		mock: pactmock.NewMock(pactmock.Options{
			WaitDelay:    10 * time.Millisecond,
			WaitDuration: 300 * time.Millisecond,
		}),
		pact:    p,
		pactDir: t.TempDir(),
		dogBody: gzipped(t, "fido"),
	}

	s.t.Cleanup(func() {
		_ = s.mock.CleanupAll(context.Background())
	})

	return s, s, s
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func (s *MockStage) and() *MockStage {
	return s
}

func (s *MockStage) mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	s.require.NoError(err)
	return string(b)
}

func (s *MockStage) a_pact_for_a_dog_with_binary_data() *MockStage {
	b := s.pact.NewInteraction(dogInteraction).
		Given("fido exists").
		WithRequest("POST", "/dogs/1234").
		WithRequestHeader("x-special-header", 0, "header").
		WithRequestHeader("content-type", 0, "application/octet-stream").
		WithQuery("someParam", 0, "someValue").
		WithResponseHeader("x-special-response-header", 0, "header").
		WithStatus(200)
	s.require.NoError(b.WithRequestBinaryBody(s.dogBody, "application/gzip"))
	s.require.NoError(b.WithResponseBody(s.mustJSON(dsl.MapMatcher{
		"name":  dsl.Like("fido"),
		"age":   dsl.Like(23),
		"alive": dsl.Like(true),
	}), "application/json"))
	return s
}

func (s *MockStage) a_pact_that_allows_any_age() *MockStage {
	b := s.pact.NewInteraction(ageInteraction).
		WithRequest("POST", "/dogs").
		WithRequestHeader("Content-Type", 0, "application/json").
		WithStatus(201)
	s.require.NoError(b.WithRequestBody(s.mustJSON(dsl.MapMatcher{"age": dsl.Like(23)}), "application/json"))
	return s
}

func (s *MockStage) a_pact_for_cats() *MockStage {
	s.pact.NewInteraction(catInteraction).
		WithRequest("GET", "/cats").
		WithStatus(200)
	return s
}

func (s *MockStage) a_pact_for_a_file_upload() *MockStage {
	file := filepath.Join(s.t.TempDir(), "monkeypatch.rb")
	s.require.NoError(os.WriteFile(file, []byte("puts 'hello'\n"), 0o600))

	b := s.pact.NewInteraction(fileInteraction).
		WithRequest("POST", "/files").
		WithStatus(201)
	s.require.NoError(b.WithRequestMultipartBody("text/plain", file, "my_file"))
	return s
}

func (s *MockStage) the_mock_server_is_started() *MockStage {
	port, err := s.mock.CreateMockServer(s.pact, "", 0)
	s.require.NoError(err)
	s.port = port
	return s
}

func (s *MockStage) send(method, path string, headers map[string]string, body []byte) {
	req, err := http.NewRequest(method, fmt.Sprintf("http://127.0.0.1:%d%s", s.port, path), bytes.NewReader(body))
	s.require.NoError(err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := http.DefaultClient.Do(req)
	s.require.NoError(err)
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	s.require.NoError(err)
	s.responses = append(s.responses, res)
	s.responseBodies = append(s.responseBodies, data)
}

func (s *MockStage) the_dog_request_is_sent() *MockStage {
	s.send(http.MethodPost, "/dogs/1234?someParam=someValue", map[string]string{
		"Content-Type":     "application/octet-stream",
		"x-special-header": "header",
	}, s.dogBody)
	return s
}

func (s *MockStage) the_dog_request_is_sent_with_the_wrong_query_and_header() *MockStage {
	s.send(http.MethodPost, "/dogs/1234?someParam=wrongValue", map[string]string{
		"Content-Type":     "application/x-www-form-urlencoded",
		"x-special-header": "WrongHeader",
	}, nil)
	return s
}

func (s *MockStage) a_file_is_uploaded_with_content(contentType, content string) *MockStage {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="my_file"; filename="upload.rb"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	s.require.NoError(err)
	_, err = part.Write([]byte(content))
	s.require.NoError(err)
	s.require.NoError(w.Close())

	s.send(http.MethodPost, "/files", map[string]string{"Content-Type": w.FormDataContentType()}, body.Bytes())
	return s
}

func (s *MockStage) a_dog_is_created_with_the_body(body string) *MockStage {
	s.send(http.MethodPost, "/dogs", map[string]string{"Content-Type": "application/json"}, []byte(body))
	return s
}

func (s *MockStage) n_cat_requests_are_sent_concurrently(n int) *MockStage {
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/cats", s.port))
			if err != nil {
				errs <- err
				return
			}
			res.Body.Close()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.require.NoError(err)
	}
	return s
}

func (s *MockStage) the_mock_waits_for_all_requests() *MockStage {
	s.waitResult = s.mock.WaitForAll(s.port)
	return s
}

func (s *MockStage) the_mock_waits_for_n_requests_to_(n int, interaction string) *MockStage {
	s.waitResult = s.mock.WaitForInteraction(s.port, interaction, n)
	return s
}

func (s *MockStage) the_pact_file_is_written() *MockStage {
	path, err := s.mock.WritePactFile(s.port, s.pactDir, false)
	s.require.NoError(err)
	s.pactPath = path
	return s
}

func (s *MockStage) pact_verification_is_successful() *MockStage {
	matched, err := s.mock.MatchedSuccessfully(s.port)
	s.require.NoError(err)
	s.assert.True(matched)

	mismatches, err := s.mock.Mismatches(s.port)
	s.require.NoError(err)
	s.assert.Empty(mismatches)
	return s
}

func (s *MockStage) pact_verification_is_not_successful() *MockStage {
	matched, err := s.mock.MatchedSuccessfully(s.port)
	s.require.NoError(err)
	s.assert.False(matched)
	return s
}

func (s *MockStage) the_nth_response_is_(n, statusCode int) *MockStage {
	s.require.GreaterOrEqual(len(s.responses), n)
	s.assert.Equal(statusCode, s.responses[n-1].StatusCode)
	return s
}

func (s *MockStage) the_response_is_(statusCode int) *MockStage {
	return s.the_nth_response_is_(len(s.responses), statusCode)
}

func (s *MockStage) the_response_body_is_json(expected string) *MockStage {
	s.require.NotEmpty(s.responseBodies)
	s.assert.JSONEq(expected, string(s.responseBodies[len(s.responseBodies)-1]))
	return s
}

func (s *MockStage) the_first_mismatch_has_types(types ...string) *MockStage {
	records, err := s.mock.Mismatches(s.port)
	s.require.NoError(err)
	s.require.NotEmpty(records)
	s.assert.Equal("request-mismatch", string(records[0].Type))

	var got []string
	for _, m := range records[0].Mismatches {
		got = append(got, string(m.Type))
	}
	s.assert.Subset(got, types)
	return s
}

func (s *MockStage) the_first_mismatch_message_is(message string) *MockStage {
	records, err := s.mock.Mismatches(s.port)
	s.require.NoError(err)
	s.require.NotEmpty(records)
	s.require.NotEmpty(records[0].Mismatches)
	s.assert.Equal(message, records[0].Mismatches[0].Message)
	return s
}

func (s *MockStage) the_mock_waited_successfully() *MockStage {
	s.assert.NoError(s.waitResult)
	return s
}

func (s *MockStage) the_mock_wait_timed_out() *MockStage {
	s.assert.Error(s.waitResult)
	return s
}

func (s *MockStage) the_pact_file_has_interactions(descriptions ...string) *MockStage {
	data, err := os.ReadFile(s.pactPath)
	s.require.NoError(err)

	var got []string
	for _, d := range gjson.GetBytes(data, "interactions.#.description").Array() {
		got = append(got, d.String())
	}
	s.assert.ElementsMatch(descriptions, got)
	s.assert.Equal("3.0.0", gjson.GetBytes(data, "metadata.pactSpecification.version").String())
	return s
}

func (s *MockStage) n_requests_were_recorded(n int) *MockStage {
	requests, err := s.mock.Requests(s.port)
	s.require.NoError(err)
	s.assert.Len(requests, n)
	return s
}

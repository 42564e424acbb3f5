package pactmock_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/form3tech-oss/pact-mock/internal/app/pacterror"
	"github.com/form3tech-oss/pact-mock/pkg/pactmock"
)

func TestMatchingBinaryRequest(t *testing.T) {
	given, when, then := NewMockStage(t)

	given.
		a_pact_for_a_dog_with_binary_data().and().
		the_mock_server_is_started()

	when.
		the_dog_request_is_sent()

	then.
		the_response_is_(http.StatusOK).and().
		the_response_body_is_json(`{"name":"fido","age":23,"alive":true}`).and().
		pact_verification_is_successful()
}

func TestMismatchedQueryHeaderAndBody(t *testing.T) {
	given, when, then := NewMockStage(t)

	given.
		a_pact_for_a_dog_with_binary_data().and().
		the_mock_server_is_started()

	when.
		the_dog_request_is_sent_with_the_wrong_query_and_header()

	then.
		the_response_is_(http.StatusInternalServerError).and().
		pact_verification_is_not_successful().and().
		the_first_mismatch_has_types("QueryMismatch", "HeaderMismatch", "BodyTypeMismatch")
}

func TestTypeMatcherAcceptsSameType(t *testing.T) {
	given, when, then := NewMockStage(t)

	given.
		a_pact_that_allows_any_age().and().
		the_mock_server_is_started()

	when.
		a_dog_is_created_with_the_body(`{"age": 99}`)

	then.
		the_response_is_(http.StatusCreated).and().
		pact_verification_is_successful()
}

func TestTypeMatcherRejectsDifferentType(t *testing.T) {
	given, when, then := NewMockStage(t)

	given.
		a_pact_that_allows_any_age().and().
		the_mock_server_is_started()

	when.
		a_dog_is_created_with_the_body(`{"age": "23"}`)

	then.
		the_response_is_(http.StatusInternalServerError).and().
		pact_verification_is_not_successful().and().
		the_first_mismatch_has_types("BodyMismatch").and().
		the_first_mismatch_message_is("Expected '23' (String) to be the same type as 23 (Integer)")
}

func TestMultipartUpload(t *testing.T) {
	given, when, then := NewMockStage(t)

	given.
		a_pact_for_a_file_upload().and().
		the_mock_server_is_started()

	when.
		a_file_is_uploaded_with_content("text/plain", "puts 'goodbye'\n")

	then.
		the_response_is_(http.StatusCreated).and().
		pact_verification_is_successful()
}

func TestMultipartUploadOfTheWrongType(t *testing.T) {
	given, when, then := NewMockStage(t)

	given.
		a_pact_for_a_file_upload().and().
		the_mock_server_is_started()

	when.
		a_file_is_uploaded_with_content("application/json", `{"puts": "goodbye"}`)

	then.
		the_response_is_(http.StatusInternalServerError).and().
		pact_verification_is_not_successful().and().
		the_first_mismatch_has_types("BodyMismatch").and().
		the_first_mismatch_message_is("Expected content with type 'text/plain' but was 'application/json'")
}

func TestMissingInteractionFailsVerification(t *testing.T) {
	given, when, then := NewMockStage(t)

	given.
		a_pact_for_a_dog_with_binary_data().and().
		a_pact_for_cats().and().
		the_mock_server_is_started()

	when.
		the_dog_request_is_sent()

	then.
		the_response_is_(http.StatusOK).and().
		pact_verification_is_not_successful()
}

func TestWaitForConcurrentRequests(t *testing.T) {
	given, when, then := NewMockStage(t)

	given.
		a_pact_for_cats().and().
		the_mock_server_is_started()

	when.
		n_cat_requests_are_sent_concurrently(5).and().
		the_mock_waits_for_n_requests_to_(5, catInteraction)

	then.
		the_mock_waited_successfully().and().
		n_requests_were_recorded(5).and().
		pact_verification_is_successful()
}

func TestWaitTimesOutWithoutRequests(t *testing.T) {
	given, when, then := NewMockStage(t)

	given.
		a_pact_for_cats().and().
		the_mock_server_is_started()

	when.
		the_mock_waits_for_all_requests()

	then.
		the_mock_wait_timed_out()
}

func TestPactFileIsWrittenAfterFailure(t *testing.T) {
	given, when, then := NewMockStage(t)

	given.
		a_pact_for_a_dog_with_binary_data().and().
		a_pact_for_cats().and().
		the_mock_server_is_started()

	when.
		the_dog_request_is_sent_with_the_wrong_query_and_header().and().
		the_pact_file_is_written()

	then.
		pact_verification_is_not_successful().and().
		the_pact_file_has_interactions(dogInteraction, catInteraction)
}

func TestUnknownMockServer(t *testing.T) {
	mock := pactmock.NewMock(pactmock.Options{})

	_, err := mock.MatchedSuccessfully(1)
	assert.True(t, errors.Is(err, pacterror.ErrUnknownMockServer), "got %v", err)

	err = mock.Cleanup(context.Background(), 1)
	assert.True(t, errors.Is(err, pacterror.ErrUnknownMockServer), "got %v", err)
}

func TestLoadPact(t *testing.T) {
	given, when, then := NewMockStage(t)

	given.
		a_pact_for_cats().and().
		the_mock_server_is_started()

	when.
		the_pact_file_is_written()

	then.
		the_pact_file_has_interactions(catInteraction)

	loaded, err := pactmock.LoadPact(given.pactPath)
	require.NoError(t, err)
	assert.Equal(t, "foo-consumer", loaded.Consumer())
	assert.Equal(t, "bar-provider", loaded.Provider())
	require.Len(t, loaded.Interactions(), 1)
	assert.Equal(t, catInteraction, loaded.Interactions()[0].Description)
}

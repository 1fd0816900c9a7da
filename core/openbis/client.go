// Licensed to NASA JPL under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. NASA JPL licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Client for the OpenBIS v3 JSON-RPC API. Covers the slice of it the import
// pipeline needs: session login/logout, project/experiment lookup and
// creation, experimental step creation and attachment dataset registration
// through the datastore server's session workspace upload.
//
// OpenBIS owns the authoritative copy of everything registered here, we keep
// nothing locally beyond the registration ledger.
package openbis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nd2openbis/core/core/importerror"
	"github.com/nd2openbis/core/core/logger"
)

const applicationServerPath = "/openbis/openbis/rmi-application-server-v3.json"
const dataStoreServerPath = "/datastore_server/rmi-data-store-server-v3.json"
const sessionWorkspaceUploadPath = "/datastore_server/session_workspace_file_upload"

// Client - a connection to one OpenBIS instance. Not ambient state: callers
// create one, Login, use it, and defer Logout.
type Client struct {
	hostURL      string
	httpClient   *http.Client
	sessionToken string
	log          logger.ILogger
}

func NewClient(hostURL string, log logger.ILogger) *Client {
	return &Client{
		hostURL:    strings.TrimSuffix(hostURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        log,
	}
}

// UploadFile - one file going into a registered dataset
type UploadFile struct {
	Name string
	Data []byte
}

type v3Request struct {
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      string        `json:"id"`
	JSONRPC string        `json:"jsonrpc"`
}

type v3Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type v3Response struct {
	Result json.RawMessage `json:"result"`
	Error  *v3Error        `json:"error"`
}

// call - one JSON-RPC round trip. Everything that goes wrong comes back as
// an integration error, the pipeline has no retry policy so callers just
// surface these.
func (c *Client) call(apiPath string, method string, params ...interface{}) (json.RawMessage, error) {
	reqBody, err := json.Marshal(v3Request{
		Method:  method,
		Params:  params,
		ID:      "1",
		JSONRPC: "2.0",
	})
	if err != nil {
		return nil, importerror.Wrap(importerror.KindIntegration, err, "failed to encode %v request", method)
	}

	resp, err := c.httpClient.Post(c.hostURL+apiPath, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return nil, importerror.Wrap(importerror.KindIntegration, err, "%v request to %v failed", method, c.hostURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, importerror.NewIntegration("%v request returned status %v", method, resp.Status)
	}

	var decoded v3Response
	err = json.NewDecoder(resp.Body).Decode(&decoded)
	if err != nil {
		return nil, importerror.Wrap(importerror.KindIntegration, err, "failed to decode %v response", method)
	}

	if decoded.Error != nil {
		return nil, importerror.NewIntegration("%v failed: %v", method, decoded.Error.Message)
	}

	return decoded.Result, nil
}

// Login - opens a session. An empty/null token back from the server means
// the credentials were rejected.
func (c *Client) Login(user string, password string) error {
	result, err := c.call(applicationServerPath, "login", user, password)
	if err != nil {
		return err
	}

	var token string
	err = json.Unmarshal(result, &token)
	if err != nil || len(token) == 0 {
		return importerror.NewIntegration("authentication rejected for user \"%v\"", user)
	}

	c.sessionToken = token
	c.log.Infof("Logged in to OpenBIS at %v as %v", c.hostURL, user)
	return nil
}

// Logout - closes the session. Safe to call if login never succeeded.
func (c *Client) Logout() {
	if len(c.sessionToken) == 0 {
		return
	}
	_, err := c.call(applicationServerPath, "logout", c.sessionToken)
	if err != nil {
		c.log.Errorf("OpenBIS logout failed: %v", err)
	}
	c.sessionToken = ""
}

func (c *Client) SessionToken() string {
	return c.sessionToken
}

func (c *Client) requireSession() error {
	if len(c.sessionToken) == 0 {
		return importerror.NewIntegration("no OpenBIS session, Login first")
	}
	return nil
}

// ExperimentExists - true if the given /SPACE/PROJECT/EXPERIMENT identifier
// resolves
func (c *Client) ExperimentExists(identifier string) (bool, error) {
	if err := c.requireSession(); err != nil {
		return false, err
	}

	result, err := c.call(applicationServerPath, "getExperiments",
		c.sessionToken,
		[]interface{}{map[string]interface{}{
			"@type":      "as.dto.experiment.id.ExperimentIdentifier",
			"identifier": identifier,
		}},
		map[string]interface{}{"@type": "as.dto.experiment.fetchoptions.ExperimentFetchOptions"},
	)
	if err != nil {
		return false, err
	}

	found := map[string]json.RawMessage{}
	err = json.Unmarshal(result, &found)
	if err != nil {
		return false, importerror.Wrap(importerror.KindIntegration, err, "failed to decode experiment lookup for %v", identifier)
	}

	return len(found) > 0, nil
}

func (c *Client) projectExists(identifier string) (bool, error) {
	result, err := c.call(applicationServerPath, "getProjects",
		c.sessionToken,
		[]interface{}{map[string]interface{}{
			"@type":      "as.dto.project.id.ProjectIdentifier",
			"identifier": identifier,
		}},
		map[string]interface{}{"@type": "as.dto.project.fetchoptions.ProjectFetchOptions"},
	)
	if err != nil {
		return false, err
	}

	found := map[string]json.RawMessage{}
	err = json.Unmarshal(result, &found)
	if err != nil {
		return false, importerror.Wrap(importerror.KindIntegration, err, "failed to decode project lookup for %v", identifier)
	}

	return len(found) > 0, nil
}

// EnsureProject - looks up /space/project, creating the project if it's not
// there yet. Creation failing due to permissions comes back as an
// integration error like everything else.
func (c *Client) EnsureProject(spaceCode string, projectCode string) (string, error) {
	if err := c.requireSession(); err != nil {
		return "", err
	}

	identifier := fmt.Sprintf("/%v/%v", strings.ToUpper(spaceCode), strings.ToUpper(projectCode))

	exists, err := c.projectExists(identifier)
	if err != nil {
		return "", err
	}
	if exists {
		return identifier, nil
	}

	c.log.Infof("Project %v not found, creating...", identifier)

	_, err = c.call(applicationServerPath, "createProjects",
		c.sessionToken,
		[]interface{}{map[string]interface{}{
			"@type":   "as.dto.project.create.ProjectCreation",
			"code":    strings.ToUpper(projectCode),
			"spaceId": map[string]interface{}{"@type": "as.dto.space.id.SpacePermId", "permId": strings.ToUpper(spaceCode)},
		}},
	)
	if err != nil {
		return "", err
	}

	return identifier, nil
}

// EnsureExperiment - looks up /space/project/experiment, creating it if
// absent. Returns the identifier steps are filed under.
func (c *Client) EnsureExperiment(projectIdentifier string, experimentCode string) (string, error) {
	if err := c.requireSession(); err != nil {
		return "", err
	}

	identifier := fmt.Sprintf("%v/%v", projectIdentifier, strings.ToUpper(experimentCode))

	exists, err := c.ExperimentExists(identifier)
	if err != nil {
		return "", err
	}
	if exists {
		return identifier, nil
	}

	c.log.Infof("Experiment %v not found, creating...", identifier)

	_, err = c.call(applicationServerPath, "createExperiments",
		c.sessionToken,
		[]interface{}{map[string]interface{}{
			"@type":     "as.dto.experiment.create.ExperimentCreation",
			"code":      strings.ToUpper(experimentCode),
			"typeId":    map[string]interface{}{"@type": "as.dto.entitytype.id.EntityTypePermId", "permId": "DEFAULT_EXPERIMENT"},
			"projectId": map[string]interface{}{"@type": "as.dto.project.id.ProjectIdentifier", "identifier": projectIdentifier},
		}},
	)
	if err != nil {
		return "", err
	}

	return identifier, nil
}

// CreateExperimentalStep - creates an EXPERIMENTAL_STEP object under the
// given experiment, carrying the extracted metadata description and the
// render results table as HTML properties
func (c *Client) CreateExperimentalStep(experimentIdentifier string, stepCode string, stepName string, descriptionHTML string, resultsHTML string) (string, error) {
	if err := c.requireSession(); err != nil {
		return "", err
	}

	result, err := c.call(applicationServerPath, "createSamples",
		c.sessionToken,
		[]interface{}{map[string]interface{}{
			"@type":        "as.dto.sample.create.SampleCreation",
			"code":         stepCode,
			"typeId":       map[string]interface{}{"@type": "as.dto.entitytype.id.EntityTypePermId", "permId": "EXPERIMENTAL_STEP"},
			"experimentId": map[string]interface{}{"@type": "as.dto.experiment.id.ExperimentIdentifier", "identifier": experimentIdentifier},
			"properties": map[string]interface{}{
				"$name": stepName,
				"experimental_step.experimental_description": descriptionHTML,
				"experimental_step.experimental_results":     resultsHTML,
			},
		}},
	)
	if err != nil {
		return "", err
	}

	// Result is a list of created sample perm ids
	createdIds := []map[string]interface{}{}
	err = json.Unmarshal(result, &createdIds)
	if err != nil || len(createdIds) == 0 {
		return "", importerror.NewIntegration("createSamples for step \"%v\" returned no ids", stepCode)
	}

	permId, _ := createdIds[0]["permId"].(string)
	if len(permId) == 0 {
		return "", importerror.NewIntegration("createSamples for step \"%v\" returned no permId", stepCode)
	}

	c.log.Infof("Created experimental step %v (%v)", stepCode, permId)
	return permId, nil
}

// RegisterDataset - uploads the given files into the session workspace and
// registers an ATTACHMENT dataset owned by the given sample. Returns the
// dataset code assigned by the datastore server.
func (c *Client) RegisterDataset(samplePermId string, datasetName string, files []UploadFile) (string, error) {
	if err := c.requireSession(); err != nil {
		return "", err
	}

	uploadId := fmt.Sprintf("nd2import-%v", samplePermId)

	for _, file := range files {
		err := c.uploadToSessionWorkspace(uploadId+"/"+file.Name, file.Data)
		if err != nil {
			return "", err
		}
	}

	result, err := c.call(dataStoreServerPath, "createUploadedDataSet",
		c.sessionToken,
		map[string]interface{}{
			"@type":    "dss.dto.dataset.create.UploadedDataSetCreation",
			"typeId":   map[string]interface{}{"@type": "as.dto.entitytype.id.EntityTypePermId", "permId": "ATTACHMENT"},
			"sampleId": map[string]interface{}{"@type": "as.dto.sample.id.SamplePermId", "permId": samplePermId},
			"uploadId": uploadId,
			"properties": map[string]interface{}{
				"$name": datasetName,
			},
		},
	)
	if err != nil {
		return "", err
	}

	created := map[string]interface{}{}
	err = json.Unmarshal(result, &created)
	if err != nil {
		return "", importerror.Wrap(importerror.KindIntegration, err, "failed to decode dataset registration response")
	}

	datasetCode, _ := created["permId"].(string)
	if len(datasetCode) == 0 {
		return "", importerror.NewIntegration("dataset registration returned no code")
	}

	c.log.Infof("Registered dataset %v with %v files", datasetCode, len(files))
	return datasetCode, nil
}

// uploadToSessionWorkspace - multipart POST of one file to the datastore
// server's upload servlet
func (c *Client) uploadToSessionWorkspace(remoteName string, data []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", remoteName)
	if err != nil {
		return importerror.Wrap(importerror.KindIntegration, err, "failed to build upload for %v", remoteName)
	}
	_, err = part.Write(data)
	if err != nil {
		return importerror.Wrap(importerror.KindIntegration, err, "failed to build upload for %v", remoteName)
	}
	err = writer.Close()
	if err != nil {
		return importerror.Wrap(importerror.KindIntegration, err, "failed to build upload for %v", remoteName)
	}

	uploadURL := fmt.Sprintf("%v%v?filename=%v&id=1&startByte=0&endByte=%v&sessionID=%v",
		c.hostURL, sessionWorkspaceUploadPath, url.QueryEscape(remoteName), len(data), url.QueryEscape(c.sessionToken))

	resp, err := c.httpClient.Post(uploadURL, writer.FormDataContentType(), &body)
	if err != nil {
		return importerror.Wrap(importerror.KindIntegration, err, "upload of %v failed", remoteName)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return importerror.NewIntegration("upload of %v returned status %v", remoteName, resp.Status)
	}

	return nil
}

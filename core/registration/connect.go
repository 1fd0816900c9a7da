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

// Registration ledger: remembers which acquisition files have already been
// imported into OpenBIS so re-runs don't register duplicates. Backed by
// Mongo DB (locally in Docker, or remotely via an AWS secret).
package registration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-secretsmanager-caching-go/secretcache"
	"github.com/nd2openbis/core/core/logger"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect - connects to the ledger DB. An empty secret means a local Mongo
// with no auth, otherwise the connection details come from the named AWS
// secret (so the session can be nil for local connections).
func Connect(
	sess *session.Session,
	mongoSecret string,
	iLog logger.ILogger,
) (*mongo.Client, error) {
	if len(mongoSecret) <= 0 {
		return connectLocal(iLog)
	}

	info, err := getConnectionInfoFromSecretCache(sess, mongoSecret)
	if err != nil {
		return nil, fmt.Errorf("Failed to read mongo secret \"%v\" info from secrets cache: %v", mongoSecret, err)
	}

	return connectRemote(info.Host, info.Username, info.Password, iLog)
}

// Assumes local mongo running in docker as per this command:
// docker run -d --name mongo-on-docker -p 27017:27017 mongo
func connectLocal(log logger.ILogger) (*mongo.Client, error) {
	log.Infof("Connecting to local mongo db...")
	mongoUri, set := os.LookupEnv("LOCAL_MONGO_URI")
	if !set {
		mongoUri = "mongodb://localhost"
	}

	client, err := mongo.Connect(context.TODO(), options.Client().ApplyURI(mongoUri).SetMonitor(makeCommandMonitor(log)).SetDirect(true))
	if err != nil {
		return nil, fmt.Errorf("Failed to create new local mongo DB connection: %v", err)
	}

	if err := ping(client); err != nil {
		return nil, err
	}

	log.Infof("Successfully connected to local mongo db!")
	return client, nil
}

func connectRemote(endpoint string, username string, password string, iLog logger.ILogger) (*mongo.Client, error) {
	iLog.Infof("Connecting to remote mongo db: %v, user: %v", endpoint, username)

	opts := options.Client().
		ApplyURI(fmt.Sprintf("mongodb://%s/", endpoint)).
		SetMonitor(makeCommandMonitor(iLog)).
		SetRetryWrites(false).
		SetDirect(true).
		SetAuth(options.Credential{
			Username:    username,
			Password:    password,
			PasswordSet: true,
			AuthSource:  "admin",
		})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("Failed to create new mongo DB connection: %v", err)
	}

	if err := ping(client); err != nil {
		return nil, err
	}

	iLog.Infof("Successfully connected to remote mongo db!")
	return client, nil
}

// Try to ping the DB to confirm connection
func ping(client *mongo.Client) error {
	var result bson.M
	return client.Database("admin").RunCommand(context.TODO(), bson.D{{Key: "ping", Value: 1}}).Decode(&result)
}

func makeCommandMonitor(log logger.ILogger) *event.CommandMonitor {
	return &event.CommandMonitor{
		Started: func(_ context.Context, evt *event.CommandStartedEvent) {
			log.Debugf("Mongo request:\n%v", evt.Command)
		},
		Succeeded: func(_ context.Context, evt *event.CommandSucceededEvent) {
			log.Debugf("Mongo success:\n%v", evt.CommandFinishedEvent)
		},
		Failed: func(_ context.Context, evt *event.CommandFailedEvent) {
			log.Errorf("Mongo FAIL:\n%v", evt.Failure)
		},
	}
}

type connectionInfo struct {
	DbClusterIdentifier string `json:"dbClusterIdentifier"`
	Password            string `json:"password"`
	Engine              string `json:"engine"`
	Port                string `json:"port"`
	Host                string `json:"host"`
	Ssl                 string `json:"ssl"`
	Username            string `json:"username"`
}

func getConnectionInfoFromSecretCache(sess *session.Session, secretName string) (connectionInfo, error) {
	var info connectionInfo

	secMan := secretsmanager.New(sess)
	seccache, err := secretcache.New(func(c *secretcache.Cache) { c.Client = secMan })
	if err != nil {
		return info, err
	}

	secretValue, err := seccache.GetSecretString(secretName)
	if err != nil {
		return info, errors.Wrap(err, "Failed to read secret "+secretName)
	}

	err = json.Unmarshal([]byte(secretValue), &info)
	if err != nil {
		return info, errors.Wrap(err, "Failed to decode secret "+secretName)
	}

	return info, nil
}

// GetDatabaseName - ledger DB name for an environment, so prod and staging
// imports don't see each other's registrations
func GetDatabaseName(envName string) string {
	return "nd2import-" + envName
}

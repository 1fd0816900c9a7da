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

package registration

import (
	"context"

	"github.com/nd2openbis/core/core/importerror"
	"github.com/nd2openbis/core/core/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const registrationsCollection = "registrations"

// Registration - one completed import, keyed by the SHA-256 of the source
// file so the same acquisition is recognised under any file name
type Registration struct {
	SourceHash            string `bson:"_id"`
	SourceFile            string `bson:"sourceFile"`
	ExperimentIdent       string `bson:"experiment"`
	StepPermId            string `bson:"stepPermId"`
	DatasetCode           string `bson:"datasetCode"`
	RegisteredUnixTimeSec int64  `bson:"registeredUnixTimeSec"`
}

type Ledger struct {
	collection *mongo.Collection
	log        logger.ILogger
}

func MakeLedger(client *mongo.Client, envName string, log logger.ILogger) *Ledger {
	return &Ledger{
		collection: client.Database(GetDatabaseName(envName)).Collection(registrationsCollection),
		log:        log,
	}
}

// FindRegistration - nil if the hash has never been registered
func (l *Ledger) FindRegistration(sourceHash string) (*Registration, error) {
	result := l.collection.FindOne(context.TODO(), bson.M{"_id": sourceHash})

	var reg Registration
	err := result.Decode(&reg)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, importerror.Wrap(importerror.KindIntegration, err, "ledger lookup failed for %v", sourceHash)
	}

	return &reg, nil
}

// CheckNotRegistered - fails if the source file was already imported, unless
// re-imports are allowed (in which case the earlier registration is just
// logged and the import proceeds, creating a new step)
func (l *Ledger) CheckNotRegistered(sourceHash string, sourceFile string, allowReimport bool) error {
	existing, err := l.FindRegistration(sourceHash)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	if allowReimport {
		l.log.Infof("File %v was already imported as dataset %v, re-importing...", sourceFile, existing.DatasetCode)
		return nil
	}

	return importerror.NewIntegration("file %v already imported as dataset %v (source %v)", sourceFile, existing.DatasetCode, existing.SourceFile)
}

// RecordRegistration - writes the ledger entry after a successful import.
// Re-imports overwrite the earlier entry for the hash.
func (l *Ledger) RecordRegistration(reg Registration) error {
	_, err := l.collection.ReplaceOne(context.TODO(), bson.M{"_id": reg.SourceHash}, reg, options.Replace().SetUpsert(true))
	if err != nil {
		return importerror.Wrap(importerror.KindIntegration, err, "failed to record registration of %v", reg.SourceFile)
	}

	l.log.Infof("Recorded registration of %v as dataset %v", reg.SourceFile, reg.DatasetCode)
	return nil
}

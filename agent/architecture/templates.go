package architecture

import (
	"strings"
	"text/template"
)

// Architecture type identifiers.
const (
	TypeWebApp3Tier   = "web_app_3tier"
	TypeServerlessAPI = "serverless_api"
	TypeMicroservices = "microservices"
	TypeDataPipeline  = "data_pipeline"
)

var templates = map[string]*template.Template{
	TypeWebApp3Tier:   template.Must(template.New(TypeWebApp3Tier).Parse(webApp3TierTemplate)),
	TypeServerlessAPI: template.Must(template.New(TypeServerlessAPI).Parse(serverlessAPITemplate)),
	TypeMicroservices: template.Must(template.New(TypeMicroservices).Parse(microservicesTemplate)),
	TypeDataPipeline:  template.Must(template.New(TypeDataPipeline).Parse(dataPipelineTemplate)),
}

func render(archType string, params Parameters) (string, error) {
	tmpl, ok := templates[archType]
	if !ok {
		tmpl = templates[TypeWebApp3Tier]
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, params); err != nil {
		return "", err
	}
	return sb.String(), nil
}

const webApp3TierTemplate = `AWSTemplateFormatVersion: '2010-09-09'
Description: '3-tier web application'

Parameters:
  Environment:
    Type: String
    Default: {{.Environment}}
    AllowedValues: [dev, staging, prod]

Resources:
  VPC:
    Type: AWS::EC2::VPC
    Properties:
      CidrBlock: 10.0.0.0/16
      EnableDnsHostnames: true
      EnableDnsSupport: true

  PublicSubnet1:
    Type: AWS::EC2::Subnet
    Properties:
      VpcId: !Ref VPC
      CidrBlock: 10.0.1.0/24
      AvailabilityZone: !Select [0, !GetAZs '']
      MapPublicIpOnLaunch: true

  PublicSubnet2:
    Type: AWS::EC2::Subnet
    Properties:
      VpcId: !Ref VPC
      CidrBlock: 10.0.2.0/24
      AvailabilityZone: !Select [1, !GetAZs '']
      MapPublicIpOnLaunch: true

  PrivateSubnet1:
    Type: AWS::EC2::Subnet
    Properties:
      VpcId: !Ref VPC
      CidrBlock: 10.0.3.0/24
      AvailabilityZone: !Select [0, !GetAZs '']

  PrivateSubnet2:
    Type: AWS::EC2::Subnet
    Properties:
      VpcId: !Ref VPC
      CidrBlock: 10.0.4.0/24
      AvailabilityZone: !Select [1, !GetAZs '']

  ApplicationLoadBalancer:
    Type: AWS::ElasticLoadBalancingV2::LoadBalancer
    Properties:
      Scheme: internet-facing
      Type: application
      Subnets:
        - !Ref PublicSubnet1
        - !Ref PublicSubnet2

  AutoScalingGroup:
    Type: AWS::AutoScaling::AutoScalingGroup
    Properties:
      VPCZoneIdentifier:
        - !Ref PrivateSubnet1
        - !Ref PrivateSubnet2
      MinSize: 2
      MaxSize: 10
      DesiredCapacity: {{.DesiredCapacity}}

  LaunchTemplate:
    Type: AWS::EC2::LaunchTemplate
    Properties:
      LaunchTemplateData:
        InstanceType: {{.InstanceType}}

  Database:
    Type: AWS::RDS::DBInstance
    Properties:
      DBInstanceClass: {{.DBInstanceClass}}
      Engine: {{.DBEngine}}
      AllocatedStorage: {{.DBStorageGB}}
      MultiAZ: {{.MultiAZ}}
      BackupRetentionPeriod: 7
      DeletionProtection: {{.DeletionProtection}}

Outputs:
  LoadBalancerDNS:
    Description: DNS name of the load balancer
    Value: !GetAtt ApplicationLoadBalancer.DNSName
`

const serverlessAPITemplate = `AWSTemplateFormatVersion: '2010-09-09'
Transform: AWS::Serverless-2016-10-31
Description: 'Serverless API with Lambda and API Gateway'

Resources:
  ApiGateway:
    Type: AWS::Serverless::Api
    Properties:
      StageName: {{.Environment}}

  ApiFunction:
    Type: AWS::Serverless::Function
    Properties:
      Handler: app.handler
      Runtime: provided.al2023
      Events:
        ApiEvent:
          Type: Api
          Properties:
            RestApiId: !Ref ApiGateway
            Path: /{proxy+}
            Method: ANY

  DataTable:
    Type: AWS::DynamoDB::Table
    Properties:
      BillingMode: PAY_PER_REQUEST
      AttributeDefinitions:
        - AttributeName: id
          AttributeType: S
      KeySchema:
        - AttributeName: id
          KeyType: HASH
`

const microservicesTemplate = `AWSTemplateFormatVersion: '2010-09-09'
Description: 'Microservices on ECS Fargate'

Resources:
  ECSCluster:
    Type: AWS::ECS::Cluster
    Properties:
      CapacityProviders:
        - FARGATE
        - FARGATE_SPOT

  ServiceDiscoveryNamespace:
    Type: AWS::ServiceDiscovery::PrivateDnsNamespace
    Properties:
      Name: services.local
      Vpc: !Ref VPC

  VPC:
    Type: AWS::EC2::VPC
    Properties:
      CidrBlock: 10.0.0.0/16
`

const dataPipelineTemplate = `AWSTemplateFormatVersion: '2010-09-09'
Description: 'Data pipeline with S3 and Lambda'

Resources:
  DataBucket:
    Type: AWS::S3::Bucket
    Properties:
      VersioningConfiguration:
        Status: Enabled
      PublicAccessBlockConfiguration:
        BlockPublicAcls: true
        BlockPublicPolicy: true
        IgnorePublicAcls: true
        RestrictPublicBuckets: true

  DataProcessor:
    Type: AWS::Lambda::Function
    Properties:
      Runtime: provided.al2023
      Handler: bootstrap
`
